package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/provider"
	"github.com/kursadbilgin/relance-engine/internal/queue"
	"github.com/kursadbilgin/relance-engine/internal/ratelimit"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// ReminderWorker consumes due follow-up reminders and hands each one to the agent's
// dialer. A transient dialer failure releases the attempt so the next due scan
// publishes it again; a permanent failure is logged and dropped.
type ReminderWorker struct {
	calls       repository.CallRepository
	deliveries  repository.DeliveryRepository
	consumer    queue.Consumer
	dialer      provider.Dialer
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewReminderWorker(
	calls repository.CallRepository,
	deliveries repository.DeliveryRepository,
	consumer queue.Consumer,
	dialer provider.Dialer,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*ReminderWorker, error) {
	if calls == nil {
		return nil, fmt.Errorf("call repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderWorker{
		calls:       calls,
		deliveries:  deliveries,
		consumer:    consumer,
		dialer:      dialer,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (w *ReminderWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the reminder queue until ctx is canceled.
func (w *ReminderWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("reminder worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.processMessage)
			if err != nil {
				w.logger.Error("reminder worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("reminder worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// processMessage returns an error only for infrastructure failures, which requeue
// the message.
func (w *ReminderWorker) processMessage(ctx context.Context, msg queue.FollowUpDueMessage) error {
	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = msg.MessageID
	}
	ctx = observability.WithCorrelationID(ctx, correlationID)
	logger := observability.WithContextLogger(w.logger, ctx).With(zap.Int64("callId", msg.CallID))

	call, err := w.calls.GetByID(ctx, msg.CallID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("follow-up not found, dropping reminder")
			return nil
		}
		return fmt.Errorf("failed to load follow-up: %w", err)
	}

	// Completed (or otherwise closed) since it was published.
	if !call.IsPending() {
		logger.Info("follow-up no longer pending, dropping reminder")
		return nil
	}
	if superseded(call, msg) {
		logger.Info("follow-up claimed again by a later scan, dropping reminder")
		return nil
	}

	priority := strings.ToLower(call.Priority.String())
	if call.Phone == nil {
		w.metrics.IncReminderFailed(priority, "missing_phone")
		w.recordDelivery(ctx, logger, call.ID, nil, errors.New("lead has no phone number"))
		logger.Warn("lead has no phone number, dropping reminder", zap.Int64("leadId", call.LeadID))
		return nil
	}

	w.metrics.IncWorkerInFlight(priority)
	defer w.metrics.DecWorkerInFlight(priority)

	if w.rateLimiter != nil {
		if err := w.rateLimiter.Wait(ctx, call.Agent); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	start := w.now()
	resp, dialErr := w.dialer.Dial(ctx, provider.DialRequest{
		CallID:       call.ID,
		LeadKey:      call.LeadKey,
		Phone:        *call.Phone,
		Agent:        call.Agent,
		Project:      call.Project,
		AttemptLevel: call.AttemptLevel,
		Priority:     call.Priority,
	})
	w.metrics.ObserveDialDuration(priority, w.now().Sub(start))
	w.recordDelivery(ctx, logger, call.ID, resp, dialErr)

	if dialErr == nil {
		w.metrics.IncReminderSent(priority)
		fields := []zap.Field{zap.String("agent", call.Agent)}
		if resp != nil && resp.MessageID != "" {
			fields = append(fields, zap.String("dialerMessageId", resp.MessageID))
		}
		logger.Info("reminder delivered to dialer", fields...)
		return nil
	}

	if provider.IsTransient(dialErr) {
		released, err := w.calls.ReleaseReminder(ctx, call.ID)
		if err != nil {
			return fmt.Errorf("failed to release follow-up after dialer error: %w", err)
		}
		if released {
			w.metrics.IncReminderReleased(priority)
		}
		logger.Warn("dialer unavailable, follow-up released for next scan",
			zap.Bool("released", released),
			zap.Error(dialErr),
		)
		return nil
	}

	w.metrics.IncReminderFailed(priority, "permanent_error")
	logger.Error("dialer rejected reminder", zap.String("agent", call.Agent), zap.Error(dialErr))
	return nil
}

// superseded reports whether the follow-up now carries a claim other than the one
// that published msg. Released follow-ups (no claim) are still dialled.
func superseded(call *domain.CallView, msg queue.FollowUpDueMessage) bool {
	if msg.ClaimedAt.IsZero() || call.RemindedAt == nil {
		return false
	}
	return !call.RemindedAt.Equal(msg.ClaimedAt)
}

// recordDelivery appends to the delivery log. The dial already happened, so a
// logging failure is reported and never requeues the message.
func (w *ReminderWorker) recordDelivery(
	ctx context.Context,
	logger *zap.Logger,
	callID int64,
	resp *provider.ProviderResponse,
	dialErr error,
) {
	if w.deliveries == nil {
		return
	}

	previous, err := w.deliveries.CountByCall(ctx, callID)
	if err != nil {
		logger.Warn("failed to count reminder deliveries", zap.Error(err))
	}

	delivery := &domain.ReminderDelivery{
		ID:            uuid.NewString(),
		CallID:        callID,
		AttemptNumber: previous + 1,
		CreatedAt:     w.now().UTC(),
	}
	if resp != nil {
		if resp.StatusCode > 0 {
			code := resp.StatusCode
			delivery.StatusCode = &code
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			delivery.ResponseBody = &body
		}
	}
	if dialErr != nil {
		msg := dialErr.Error()
		delivery.Error = &msg

		var providerErr *provider.ProviderError
		if errors.As(dialErr, &providerErr) && providerErr.StatusCode > 0 && delivery.StatusCode == nil {
			code := providerErr.StatusCode
			delivery.StatusCode = &code
		}
	}

	if err := w.deliveries.Create(ctx, delivery); err != nil {
		logger.Warn("failed to record reminder delivery", zap.Error(err))
	}
}
