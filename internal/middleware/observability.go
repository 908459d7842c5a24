package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/edunexa-api/internal/observability"
)

const tracerName = "github.com/noah-isme/edunexa-api/internal/middleware"

// Observability opens a server span for every /api request, records the
// request metrics and writes one structured log line per request. Span and
// correlation id flow to the handlers through the user context.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	tracer := otel.Tracer(tracerName)

	return func(c *fiber.Ctx) error {
		if !strings.HasPrefix(c.Path(), "/api") {
			return c.Next()
		}

		started := time.Now()
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()
		elapsed := time.Since(started)

		route := routeTemplate(c)
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)

		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, code)
		}

		observability.APIRequests().WithLabelValues(c.Method(), route, code).Inc()
		observability.APILatency().WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(c.Method(), route, code).Inc()
		}

		event := logEventFor(logger, status)
		event.Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Str("latency_bucket", latencyBucket(elapsed))
		if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
			event.Str("user_id", userID)
		}
		event.Msg("request handled")

		return err
	}
}

func logEventFor(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= fiber.StatusInternalServerError:
		return logger.Error()
	case status >= fiber.StatusBadRequest:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

func latencyBucket(elapsed time.Duration) string {
	bounds := []struct {
		limit time.Duration
		label string
	}{
		{25 * time.Millisecond, "<=25ms"},
		{100 * time.Millisecond, "<=100ms"},
		{500 * time.Millisecond, "<=500ms"},
		{2 * time.Second, "<=2s"},
	}
	for _, bound := range bounds {
		if elapsed <= bound.limit {
			return bound.label
		}
	}
	return ">2s"
}
