package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/metrics"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 5 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
	sinkName           = "redis"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// broker is the Redis pub/sub surface the publisher writes to.
type broker interface {
	Ping(context.Context) error
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, sink string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, sink string, eventID uuid.UUID) error
}

// Message is what subscribers receive on a finance channel.
type Message struct {
	OutboxID      uuid.UUID                 `json:"outboxId"`
	EventType     enums.OutboxEventType     `json:"eventType"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	CreatedAt     time.Time                 `json:"createdAt"`
	Envelope      outbox.PayloadEnvelope    `json:"envelope"`
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Broker     broker
	Repository outboxRepository
	Registry   registryResolver
	// Guard is optional. Without it a row whose published mark rolls back is delivered again.
	Guard   deliveryGuard
	Metrics *metrics.OutboxMetrics
}

// Service drains outbox_events onto Redis channels. Each batch runs in one
// transaction, so on Postgres concurrent publishers claim disjoint rows.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	broker      broker
	registry    registryResolver
	guard       deliveryGuard
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	cfg := params.Config.Outbox
	s := &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		broker:      params.Broker,
		registry:    params.Registry,
		guard:       params.Guard,
		metrics:     params.Metrics,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		poll:        time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		now:         time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.poll <= 0 {
		s.poll = defaultPoll
	}
	return s, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by the
// next one; an empty batch waits one poll interval; a failed batch backs off
// exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "redis": s.broker.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.poll
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		started := s.now()
		processed, err := s.processBatch(ctx)
		s.metrics.Batch(s.now().Sub(started), err)

		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.poll, maxBackoff)
			wait = withJitter(backoff)
		case processed:
			backoff = s.poll
			continue
		default:
			backoff = s.poll
			wait = withJitter(s.poll)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch reports whether any rows were fetched.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			outcome, err := s.processEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			s.metrics.Event(string(event.EventType), outcome, event.CreatedAt, s.now())
		}
		return nil
	})
	return processed, err
}

// processEvent returns an error only when the row's state could not be recorded.
// Publish failures are recorded on the row and the batch moves on.
func (s *Service) processEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	ctx = s.logg.WithFields(ctx, eventFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithField(ctx, "channel", resolved.Descriptor.Channel)

	duplicate, err := s.publish(ctx, event, resolved)
	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		if duplicate {
			s.logg.Info(ctx, "outbox event already delivered; marked published")
			return metrics.OutboxDuplicate, nil
		}
		s.logg.Debug(ctx, "outbox event published")
		return metrics.OutboxPublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	s.logg.WarnErr(s.logg.WithField(ctx, "attempt", event.AttemptCount+1), "outbox publish failed", err)
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return metrics.OutboxRetried, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (string, error) {
	s.logg.WarnErr(s.logg.WithField(ctx, "dlq_reason", reason), "outbox event dead lettered", cause)
	if err := s.repo.DeadLetterTx(tx, event, reason, cause, s.maxAttempts); err != nil {
		return "", fmt.Errorf("dead letter %s: %w", event.ID, err)
	}
	return metrics.OutboxDeadLettered, nil
}

// publish sends event once per sink. It reports true when the guard shows an earlier
// run already delivered it.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) (bool, error) {
	channel := resolved.Descriptor.Channel
	if channel == "" {
		return false, registry.NewNonRetryableError(fmt.Errorf("no channel configured for %s", event.EventType))
	}
	body, err := json.Marshal(Message{
		OutboxID:      event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		CreatedAt:     event.CreatedAt,
		Envelope:      resolved.Envelope,
	})
	if err != nil {
		return false, registry.NewNonRetryableError(fmt.Errorf("encode message: %w", err))
	}

	if s.guard != nil {
		delivered, err := s.guard.Claim(ctx, sinkName, event.ID)
		if err != nil {
			return false, fmt.Errorf("claim delivery: %w", err)
		}
		if delivered {
			return true, nil
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := s.broker.Publish(publishCtx, channel, body); err != nil {
		if s.guard != nil {
			if relErr := s.guard.Release(context.WithoutCancel(ctx), sinkName, event.ID); relErr != nil {
				s.logg.WarnErr(ctx, "failed to release delivery claim", relErr)
			}
		}
		return false, err
	}
	return false, nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
