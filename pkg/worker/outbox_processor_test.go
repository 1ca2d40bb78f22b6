package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/logger"
	"github.com/jwalitptl/carebook/pkg/messaging"
	"github.com/jwalitptl/carebook/pkg/metrics"
)

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	return m.Called(event).Error(0)
}

func (m *mockOutboxRepo) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	args := m.Called(limit, lease)
	events, _ := args.Get(0).([]*model.OutboxEvent)
	return events, args.Error(1)
}

func (m *mockOutboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string, retryAt *time.Time) error {
	return m.Called(id, status, errMsg, retryAt).Error(0)
}

func (m *mockOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(channel, message).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (m *mockBroker) Ping(ctx context.Context) error { return nil }
func (m *mockBroker) Close() error                   { return nil }

var testConfig = OutboxProcessorConfig{
	BatchSize:    10,
	PollInterval: time.Second,
	MaxAttempts:  3,
	RetryDelay:   time.Second,
	Lease:        time.Minute,
	Retention:    24 * time.Hour,
}

func newTestProcessor(t *testing.T, repo *mockOutboxRepo, broker *mockBroker) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(repo, broker, testConfig, logger.Nop(), metrics.NewForTest())
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func newEvent(t *testing.T, retries int) *model.OutboxEvent {
	t.Helper()
	evt, err := model.NewOutboxEvent(model.EventAppointmentConfirmed, map[string]string{"appointment_id": "a1"})
	require.NoError(t, err)
	evt.RetryCount = retries
	return evt
}

func TestProcessBatchPublishesEnvelope(t *testing.T) {
	repo, broker := &mockOutboxRepo{}, &mockBroker{}
	p := newTestProcessor(t, repo, broker)
	evt := newEvent(t, 0)

	repo.On("ClaimPending", 10, time.Minute).Return([]*model.OutboxEvent{evt}, nil)
	broker.On("Publish", model.EventAppointmentConfirmed, mock.MatchedBy(func(env messaging.Envelope) bool {
		raw, ok := env.Payload.(json.RawMessage)
		return ok && env.ID == evt.ID.String() && env.Type == evt.EventType && string(raw) == `{"appointment_id":"a1"}`
	})).Return(nil)
	repo.On("UpdateStatus", evt.ID, model.OutboxStatusProcessed, (*string)(nil), (*time.Time)(nil)).Return(nil)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	repo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestProcessBatchSchedulesRetryWithBackoff(t *testing.T) {
	repo, broker := &mockOutboxRepo{}, &mockBroker{}
	p := newTestProcessor(t, repo, broker)
	evt := newEvent(t, 1)

	repo.On("ClaimPending", 10, time.Minute).Return([]*model.OutboxEvent{evt}, nil)
	broker.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)
	wantRetry := p.now().Add(2 * time.Second)
	repo.On("UpdateStatus", evt.ID, model.OutboxStatusRetry, mock.AnythingOfType("*string"), mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(wantRetry)
	})).Return(nil)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	repo.AssertExpectations(t)
}

func TestProcessBatchMarksFailedAfterMaxAttempts(t *testing.T) {
	repo, broker := &mockOutboxRepo{}, &mockBroker{}
	p := newTestProcessor(t, repo, broker)
	evt := newEvent(t, 2)

	repo.On("ClaimPending", 10, time.Minute).Return([]*model.OutboxEvent{evt}, nil)
	broker.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)
	repo.On("UpdateStatus", evt.ID, model.OutboxStatusFailed, mock.AnythingOfType("*string"), (*time.Time)(nil)).Return(nil)

	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessBatchClaimError(t *testing.T) {
	repo, broker := &mockOutboxRepo{}, &mockBroker{}
	p := newTestProcessor(t, repo, broker)
	repo.On("ClaimPending", 10, time.Minute).Return(nil, assert.AnError)

	_, err := p.ProcessBatch(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestCleanupUsesRetention(t *testing.T) {
	repo := &mockOutboxRepo{}
	p := newTestProcessor(t, repo, &mockBroker{})
	repo.On("DeleteProcessedBefore", p.now().Add(-24*time.Hour)).Return(int64(4), nil)

	removed, err := p.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(&mockOutboxRepo{}, &mockBroker{}, cfg, logger.Nop(), metrics.NewForTest())
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 0))
	assert.Equal(t, 8*time.Second, backoff(time.Second, 3))
	assert.Equal(t, 1024*time.Second, backoff(time.Second, 50))
}
