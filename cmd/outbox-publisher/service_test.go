package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db/models"
	"github.com/angelmondragon/packfinderz-finance/pkg/enums"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/metrics"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-finance/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			payoutEvent(t, "event-one", 0),
			payoutEvent(t, "event-two", 0),
		},
	}
	broker := &fakeBroker{errs: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
}

func TestServicePublishesMessageOnDescriptorChannel(t *testing.T) {
	event := payoutEvent(t, "published", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	broker := &fakeBroker{}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, broker.sent, 1)
	require.Equal(t, "finance.events.payouts", broker.sent[0].channel)

	var msg Message
	require.NoError(t, json.Unmarshal(broker.sent[0].body, &msg))
	require.Equal(t, event.ID, msg.OutboxID)
	require.Equal(t, enums.EventPayoutCompleted, msg.EventType)
	require.Equal(t, event.AggregateID, msg.AggregateID)
	require.Equal(t, event.ID.String(), msg.Envelope.EventID)
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := payoutEvent(t, "nonretryable", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakeBroker{}, reg, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, repo.deadLetters, 1)
	entry := repo.deadLetters[0]
	require.Equal(t, event.ID, entry.event.ID)
	require.True(t, bytes.Equal(entry.event.Payload, event.Payload))
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.reason)
	require.Equal(t, 5, entry.terminalAttempts)
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := payoutEvent(t, "max-attempts", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	broker := &fakeBroker{errs: []error{errors.New("transient")}}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
		ChannelPrefix:  "finance.events",
	})

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.deadLetters, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, repo.deadLetters[0].reason)
	require.ErrorContains(t, repo.deadLetters[0].cause, "max publish attempts")
	require.Empty(t, repo.failed)
}

func TestServiceSkipsAlreadyDeliveredEvents(t *testing.T) {
	event := payoutEvent(t, "redelivered", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	broker := &fakeBroker{}
	guard := &fakeGuard{claimed: map[uuid.UUID]bool{event.ID: true}}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, nil)
	service.guard = guard

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Empty(t, broker.sent)
	require.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestServiceReleasesClaimWhenPublishFails(t *testing.T) {
	event := payoutEvent(t, "release", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	broker := &fakeBroker{errs: []error{errors.New("conn reset")}}
	guard := &fakeGuard{claimed: map[uuid.UUID]bool{}}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, nil)
	service.guard = guard

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{event.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{event.ID}, guard.released)
	require.False(t, guard.claimed[event.ID])
}

func TestServiceCountsOutcomes(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			payoutEvent(t, "ok", 0),
			payoutEvent(t, "flaky", 0),
		},
	}
	repo.events[0].CreatedAt = time.Now().Add(-2 * time.Second)
	broker := &fakeBroker{errs: []error{nil, errors.New("transient")}}
	service := newTestService(t, repo, broker, &fakeRegistry{resolved: payoutResolved()}, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)

	eventType := string(enums.EventPayoutCompleted)
	require.Equal(t, 1.0, outcomeCount(t, reg, eventType, metrics.OutboxPublished))
	require.Equal(t, 1.0, outcomeCount(t, reg, eventType, metrics.OutboxRetried))
	require.Zero(t, outcomeCount(t, reg, eventType, metrics.OutboxDeadLettered))
	count, err := testutil.GatherAndCount(reg, "finance_outbox_publish_lag_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func outcomeCount(t *testing.T, reg *prometheus.Registry, eventType, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "finance_outbox_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event_type"] == eventType && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestServiceCountsDuplicates(t *testing.T) {
	event := payoutEvent(t, "dup", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, &fakeBroker{}, &fakeRegistry{resolved: payoutResolved()}, nil)
	service.guard = &fakeGuard{claimed: map[uuid.UUID]bool{event.ID: true}}
	service.metrics = metrics.NewOutboxMetrics(prometheus.NewRegistry())

	outcome, err := service.processEvent(context.Background(), nil, event)
	require.NoError(t, err)
	require.Equal(t, metrics.OutboxDuplicate, outcome)
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, 100*time.Millisecond, time.Second))
	require.Equal(t, time.Second, nextBackoff(800*time.Millisecond, 100*time.Millisecond, time.Second))
	require.Equal(t, 200*time.Millisecond, nextBackoff(0, 100*time.Millisecond, time.Second))
	require.Zero(t, withJitter(0))
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Config: &config.Config{}, Logger: discardLogger(), DB: &fakeDB{}})
	require.ErrorContains(t, err, "broker")
}

func newTestService(t *testing.T, repo outboxRepository, b broker, reg registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
		ChannelPrefix:  "finance.events",
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     discardLogger(),
		DB:         &fakeDB{},
		Broker:     b,
		Repository: repo,
		Registry:   reg,
	})
	require.NoError(t, err)
	return service
}

func discardLogger() *logger.Logger {
	return logger.Nop()
}

func payoutEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayoutRequest,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(tb, eventID),
		AttemptCount:  attempts,
	}
}

func payoutResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayoutRequest,
			Channel:       "finance.events.payouts",
		},
		Payload: &payloads.PayoutStatusEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type deadLetter struct {
	event            models.OutboxEvent
	reason           enums.OutboxDLQErrorReason
	cause            error
	terminalAttempts int
}

type fakeRepo struct {
	events      []models.OutboxEvent
	published   []uuid.UUID
	failed      []uuid.UUID
	deadLetters []deadLetter
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) DeadLetterTx(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error {
	f.deadLetters = append(f.deadLetters, deadLetter{event: event, reason: reason, cause: cause, terminalAttempts: terminalAttempts})
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type sentMessage struct {
	channel string
	body    []byte
}

type fakeBroker struct {
	errs []error
	sent []sentMessage
}

func (f *fakeBroker) Ping(context.Context) error { return nil }

func (f *fakeBroker) Publish(_ context.Context, channel string, message any) (int64, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.sent = append(f.sent, sentMessage{channel: channel, body: message.([]byte)})
	return 1, nil
}

type fakeGuard struct {
	claimed  map[uuid.UUID]bool
	released []uuid.UUID
}

func (f *fakeGuard) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.claimed[eventID] {
		return true, nil
	}
	f.claimed[eventID] = true
	return false, nil
}

func (f *fakeGuard) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.claimed, eventID)
	f.released = append(f.released, eventID)
	return nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}
