package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
)

const (
	defaultPublishedRetention  = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
	defaultPurgeBatch          = 500
	// Caps one run so a large backlog drains over several cycles instead of
	// holding the cron lock past its TTL.
	maxPurgeBatches = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	PurgePublished(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	PurgeDeadLetters(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup job. Zero durations and
// batch sizes fall back to the package defaults.
type OutboxRetentionJobParams struct {
	Logger              *logger.Logger
	DB                  txRunner
	Repository          outboxPurger
	PublishedRetention  time.Duration
	DeadLetterRetention time.Duration
	BatchSize           int
}

// NewOutboxRetentionJob trims published finance events and, on a longer horizon,
// dead letters nobody requeued.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:       params.Logger,
		db:         params.DB,
		repo:       params.Repository,
		published:  params.PublishedRetention,
		deadLetter: params.DeadLetterRetention,
		batch:      params.BatchSize,
		now:        time.Now,
	}
	if job.published <= 0 {
		job.published = defaultPublishedRetention
	}
	if job.deadLetter <= 0 {
		job.deadLetter = defaultDeadLetterRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPurgeBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg       *logger.Logger
	db         txRunner
	repo       outboxPurger
	published  time.Duration
	deadLetter time.Duration
	batch      int
	now        func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	published, err := j.drain(ctx, now.Add(-j.published), j.repo.PurgePublished)
	if err != nil {
		return fmt.Errorf("purge published events: %w", err)
	}
	deadLetters, err := j.drain(ctx, now.Add(-j.deadLetter), j.repo.PurgeDeadLetters)
	if err != nil {
		return fmt.Errorf("purge dead letters: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_deleted":   published,
		"dead_letter_deleted": deadLetters,
		"batch_size":          j.batch,
	}), "outbox retention cleanup complete")
	return nil
}

type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)

// drain runs purge in its own transaction per batch until a short batch signals
// the backlog is empty.
func (j *outboxRetentionJob) drain(ctx context.Context, cutoff time.Time, purge purgeFunc) (int64, error) {
	var total int64
	for range maxPurgeBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = purge(ctx, tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(j.batch) {
			break
		}
	}
	return total, nil
}
