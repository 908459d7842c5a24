package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/edunexa-api/internal/config"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

const probeTimeout = 2 * time.Second

// HealthProbe checks one backing dependency such as postgres or redis.
type HealthProbe func(ctx context.Context) error

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	CheckedAt    time.Time         `json:"checked_at"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthHandler reports liveness together with the state of each probe.
type HealthHandler struct {
	cfg    config.Config
	probes map[string]HealthProbe
}

// NewHealthHandler constructs the handler. probes may be nil.
func NewHealthHandler(cfg config.Config, probes map[string]HealthProbe) *HealthHandler {
	return &HealthHandler{cfg: cfg, probes: probes}
}

// Check answers 200 when every probe passes and 503 with the failing
// dependencies otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	status := HealthStatus{
		Status:      "ok",
		Service:     h.cfg.AppName,
		Environment: h.cfg.AppEnv,
		CheckedAt:   time.Now().UTC(),
	}

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var failing []string
	for _, name := range names {
		if status.Dependencies == nil {
			status.Dependencies = make(map[string]string, len(names))
		}
		if err := h.probes[name](ctx); err != nil {
			status.Dependencies[name] = "down"
			failing = append(failing, name)
			continue
		}
		status.Dependencies[name] = "up"
	}

	if len(failing) > 0 {
		status.Status = "degraded"
		return utils.Fail(c, fiber.StatusServiceUnavailable, "service degraded", status)
	}
	return utils.SendSuccess(c, "service healthy", status)
}
