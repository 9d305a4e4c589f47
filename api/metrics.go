package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveRoute       = "/api/content/:id/move"
	moveSpanName    = "board.move"
	moveEventName   = "board.move.completed"
	moveEventDomain = "contentflow"
)

// moveRequestMetrics collects per-request measurements for the move route
// and emits them as one structured observability event plus an otel span.
type moveRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	dedupeDuration time.Duration
	applyDuration  time.Duration
	outcome        string
	errorStage     string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	m := &moveRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer("contentflow-api/api").Start(ctx, moveSpanName)
	m.span = span
	return m, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *moveRequestMetrics) ObserveDedupe(d time.Duration) {
	if d > 0 {
		m.dedupeDuration = d
	}
}

func (m *moveRequestMetrics) ObserveApply(d time.Duration) {
	if d > 0 {
		m.applyDuration = d
	}
}

// SetOutcome records how the gesture resolved: applied, noop, invalid,
// busy or duplicate.
func (m *moveRequestMetrics) SetOutcome(outcome string) {
	if outcome != "" {
		m.outcome = outcome
	}
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log emits the observability event and closes the span. Call exactly once
// per request.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":                moveRoute,
		"http.status_code":          status,
		"contentflow.move.total_ms": totalMs,
		"contentflow.move.outcome":  m.outcome,
	}
	if m.authDuration > 0 {
		attrs["contentflow.move.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.dedupeDuration > 0 {
		attrs["contentflow.move.dedupe_ms"] = durationToMillis(m.dedupeDuration)
	}
	if m.applyDuration > 0 {
		attrs["contentflow.move.apply_ms"] = durationToMillis(m.applyDuration)
	}
	if m.errorStage != "" {
		attrs["contentflow.move.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error"] = err.Error()
	}

	severityText, severityNumber := "INFO", 9
	if err != nil || status >= 500 {
		severityText, severityNumber = "ERROR", 17
	}

	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}

	if m.span != nil {
		spanAttrs := []attribute.KeyValue{
			attribute.String("http.route", moveRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("contentflow.move.total_ms", totalMs),
			attribute.String("contentflow.move.outcome", m.outcome),
		}
		if m.errorStage != "" {
			spanAttrs = append(spanAttrs, attribute.String("contentflow.move.error_stage", m.errorStage))
		}
		m.span.SetAttributes(spanAttrs...)
		m.span.AddEvent("observability.event")
		if err != nil || status >= 500 {
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	entry := m.logger.WithFields(fields)
	if severityText == "ERROR" {
		entry.Error("observability.event")
		return
	}
	entry.Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
