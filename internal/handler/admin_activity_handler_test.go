package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edunexa-api/internal/dto"
)

func TestAdminActivityHandlerList(t *testing.T) {
	api := newTestAPI(t)
	submission := submitText(t, api, api.open.ID, "answer")

	resp, _ := api.json(t, teacher, http.MethodGet, "/api/admin/activity", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := api.json(t, admin, http.MethodGet, "/api/admin/activity?entity_type=submission&entity_id="+submission.ID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var entries []dto.ActivityResponse
	require.NoError(t, json.Unmarshal(body.Data, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "submission.created", entries[0].Action)
	require.Equal(t, student.id, entries[0].ActorID)
	require.Equal(t, api.open.ID, entries[0].Metadata["assignment_id"])

	resp, body = api.json(t, admin, http.MethodGet, "/api/admin/activity?entity_type=course", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation failed", body.Message)
}
