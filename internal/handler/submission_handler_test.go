package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
)

func TestSubmissionHandlerSubmitJSON(t *testing.T) {
	api := newTestAPI(t)
	path := "/api/assignments/" + api.open.ID + "/submit"

	resp, body := api.json(t, student, http.MethodPost, path, map[string]string{"text_content": "Displacement over time."})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "Assignment submitted successfully", body.Message)

	var submission dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(body.Data, &submission))
	require.Equal(t, models.SubmissionStatusSubmitted, submission.Status)
	require.Equal(t, student.id, submission.StudentID)

	resp, body = api.json(t, student, http.MethodPost, path, map[string]string{"text_content": "Second try"})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "You have already submitted this assignment", body.Message)

	resp, body = api.json(t, teacher, http.MethodGet, "/api/assignments/submissions/"+submission.ID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, body.Success)

	resp, _ = api.json(t, outsider, http.MethodGet, "/api/assignments/submissions/"+submission.ID, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestSubmissionHandlerRejections(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.json(t, student, http.MethodPost, "/api/assignments/"+api.closed.ID+"/submit", map[string]string{"text_content": "late"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Assignment deadline has passed", body.Message)
	require.JSONEq(t, `{"reason":"`+lifecycle.ReasonDeadline+`"}`, string(body.Details))

	resp, body = api.json(t, student, http.MethodPost, "/api/assignments/"+api.open.ID+"/submit", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Please provide either text content or upload a file", body.Message)

	resp, _ = api.json(t, outsider, http.MethodPost, "/api/assignments/"+api.open.ID+"/submit", map[string]string{"text_content": "hi"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = api.json(t, teacher, http.MethodPost, "/api/assignments/"+api.open.ID+"/submit", map[string]string{"text_content": "hi"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "insufficient permissions", body.Message)

	resp, _ = api.json(t, student, http.MethodPost, "/api/assignments/unknown/submit", map[string]string{"text_content": "hi"})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func multipartSubmission(t *testing.T, text, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if text != "" {
		require.NoError(t, writer.WriteField("text_content", text))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmissionHandlerSubmitMultipart(t *testing.T) {
	api := newTestAPI(t)
	path := "/api/assignments/" + api.open.ID + "/submit"

	body, contentType := multipartSubmission(t, "", "slides.pptx", []byte("not allowed"))
	resp := api.request(t, student, http.MethodPost, path, body, contentType)
	rejected := decodeEnvelope(t, resp)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "File type .pptx is not allowed", rejected.Message)

	body, contentType = multipartSubmission(t, "See attached", "answers.txt", []byte("v = 3 m/s"))
	resp = api.request(t, student, http.MethodPost, path, body, contentType)
	accepted := decodeEnvelope(t, resp)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var submission dto.SubmissionResponse
	require.NoError(t, json.Unmarshal(accepted.Data, &submission))
	require.Equal(t, "answers.txt", submission.FileName)
	require.Equal(t, "https://files.example.com/"+api.open.ID+"/answers.txt", submission.FilePath)
	require.Equal(t, "See attached", submission.TextContent)
	require.Equal(t, []string{"answers.txt"}, api.uploader.names)
}
