package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

const defaultKeepAlive = 30 * time.Second

// NotificationHandler serves the notification inbox and its live stream.
type NotificationHandler struct {
	service   service.NotificationService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewNotificationHandler constructs a handler instance. keepAlive controls how
// often idle streams receive a comment frame.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger, keepAlive time.Duration) *NotificationHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &NotificationHandler{
		service:   service,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	signedIn := middleware.AuthOptions{RequireUser: true}
	router.Get("", middleware.WithAuth(h.inbox, signedIn))
	router.Get("/stream", middleware.WithAuth(h.stream, signedIn))
	router.Patch("/:id/read", middleware.WithAuth(h.markRead, signedIn))
}

func (h *NotificationHandler) inbox(c *fiber.Ctx) error {
	var query dto.NotificationListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	items, err := h.service.List(requestContext(c), actorFromContext(c).ID, query)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "notifications", items)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	updated, err := h.service.MarkRead(requestContext(c), uint(id), actorFromContext(c).ID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "notification updated", updated)
}

// stream keeps the connection open and writes each notification as an SSE
// "notification" event until the client goes away.
func (h *NotificationHandler) stream(c *fiber.Ctx) error {
	userID := actorFromContext(c).ID
	ctx := requestContext(c)
	log := h.logger.With().Str("user_id", userID).Logger()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, release := h.service.Subscribe(userID)
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer release()

		out := sseWriter{w: w}
		if err := out.comment("connected"); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case notification, open := <-events:
				if !open {
					return
				}
				err = out.event("notification", notification)
			case now := <-ticker.C:
				err = out.comment("keep-alive " + now.UTC().Format(time.RFC3339))
			}
			if err != nil {
				log.Debug().Err(err).Msg("notification stream closed")
				return
			}
		}
	})

	return nil
}

type sseWriter struct {
	w *bufio.Writer
}

func (s sseWriter) event(name string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.w.Flush()
}
