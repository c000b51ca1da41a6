package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics exports workflow counters through the OpenTelemetry meter so
// deployments that ship metrics over OTLP get them alongside traces. The
// Prometheus registry remains the primary scrape surface.
type OTelMetrics struct {
	accessDecisions   metric.Int64Counter
	approvalDecisions metric.Int64Counter
	notifications     metric.Int64Counter
}

// NewOTelMetrics creates the OTel instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("heron-portal")

	accessDecisions, err := meter.Int64Counter("heron.access.decisions",
		metric.WithDescription("Access decision outcomes"))
	if err != nil {
		return nil, fmt.Errorf("failed to create access decision counter: %w", err)
	}

	approvalDecisions, err := meter.Int64Counter("heron.approval.decisions",
		metric.WithDescription("DROC approval decisions recorded"))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval decision counter: %w", err)
	}

	notifications, err := meter.Int64Counter("heron.notifications",
		metric.WithDescription("Notification delivery attempts"))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification counter: %w", err)
	}

	return &OTelMetrics{
		accessDecisions:   accessDecisions,
		approvalDecisions: approvalDecisions,
		notifications:     notifications,
	}, nil
}

// RecordAccessDecision records one access decision outcome
func (m *OTelMetrics) RecordAccessDecision(ctx context.Context, capability, result string) {
	m.accessDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("result", result),
	))
}

// RecordApprovalDecision records one approval decision
func (m *OTelMetrics) RecordApprovalDecision(ctx context.Context, org, status string) {
	m.approvalDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("org", org),
		attribute.String("status", status),
	))
}

// RecordNotification records one notification delivery attempt
func (m *OTelMetrics) RecordNotification(ctx context.Context, kind string, delivered bool) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("delivered", delivered),
	))
}
