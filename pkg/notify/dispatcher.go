package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kumc-bmi/heron-portal/pkg/observability"
)

// Dispatcher wraps a Notifier with retries, delivery logging, and
// metrics. Dispatch never returns an error; callers that must not fail
// on notification problems use it instead of the raw Notifier.
type Dispatcher struct {
	notifier Notifier
	log      *logrus.Logger
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
	attempts int
	backoff  time.Duration
	wg       sync.WaitGroup
}

// DispatcherOption customizes a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithRetry overrides the delivery attempt count and base backoff
func WithRetry(attempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if backoff > 0 {
			d.backoff = backoff
		}
	}
}

// NewDispatcher creates a dispatcher. log, metrics, and otel may be nil.
func NewDispatcher(notifier Notifier, log *logrus.Logger, metrics *observability.Metrics, otel *observability.OTelMetrics, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = logrus.New()
	}
	d := &Dispatcher{
		notifier: notifier,
		log:      log,
		metrics:  metrics,
		otel:     otel,
		attempts: 3,
		backoff:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the message, trying once on the caller's path. A
// failed first attempt hands the message to a background retry loop so
// request handlers never sit through backoff. Failure after all
// attempts is logged and counted but never propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, msg Message) {
	fields := logrus.Fields{
		"kind":    kind,
		"to":      msg.To,
		"subject": msg.Subject,
	}

	err := d.notifier.Send(ctx, msg)
	if err == nil {
		d.log.WithFields(fields).WithField("attempt", 1).Info("notification delivered")
		d.count(ctx, kind, true)
		return
	}
	d.log.WithFields(fields).WithField("attempt", 1).WithError(err).Warn("notification delivery failed")
	if d.attempts <= 1 {
		d.log.WithFields(fields).WithError(err).Error("notification abandoned")
		d.count(ctx, kind, false)
		return
	}

	// The caller's deadline must not cut the retry tail short
	retryCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go d.retry(retryCtx, kind, msg, fields)
}

func (d *Dispatcher) retry(ctx context.Context, kind string, msg Message, fields logrus.Fields) {
	defer d.wg.Done()
	var err error
	for attempt := 2; attempt <= d.attempts; attempt++ {
		time.Sleep(d.backoff * time.Duration(attempt-1))
		err = d.notifier.Send(ctx, msg)
		if err == nil {
			d.log.WithFields(fields).WithField("attempt", attempt).Info("notification delivered")
			d.count(ctx, kind, true)
			return
		}
		d.log.WithFields(fields).WithField("attempt", attempt).WithError(err).Warn("notification delivery failed")
	}
	d.log.WithFields(fields).WithError(err).Error("notification abandoned")
	d.count(ctx, kind, false)
}

// Wait blocks until every in-flight retry has finished. Called on
// shutdown so pending notices are not dropped mid-retry.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) count(ctx context.Context, kind string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	if d.metrics != nil {
		d.metrics.NotificationsTotal.WithLabelValues(kind, result).Inc()
	}
	if d.otel != nil {
		d.otel.RecordNotification(ctx, kind, delivered)
	}
}
