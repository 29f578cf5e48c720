package dlqworker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	ingestionmock "gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/mock"
	jsmock "gitlab.com/smilefunnel/api/lead-engine/internal/jetstream/mock"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	storagemock "gitlab.com/smilefunnel/api/lead-engine/internal/storage/mock"
)

type fakeAcker struct {
	acks   int
	terms  int
	delays []time.Duration
}

func (f *fakeAcker) Ack(...nats.AckOpt) error { f.acks++; return nil }
func (f *fakeAcker) Term(...nats.AckOpt) error { f.terms++; return nil }
func (f *fakeAcker) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	f.delays = append(f.delays, d)
	return nil
}

func testWorkerConfig() config.DLQWorkerConfig {
	return config.DLQWorkerConfig{
		Enabled:        true,
		Workers:        2,
		MaxAgeDays:     30,
		MaxDeliver:     10,
		AckWait:        time.Minute,
		MaxAckPending:  100,
		ReplayAttempts: 3,
		BaseDelay:      time.Minute,
		MaxDelay:       30 * time.Minute,
	}
}

func newTestWorker(t *testing.T) (*Worker, *ingestionmock.RouterMock, *storagemock.DeadLetterRepoMock) {
	t.Helper()
	router := new(ingestionmock.RouterMock)
	store := new(storagemock.DeadLetterRepoMock)
	w := &Worker{
		cfg:     testWorkerConfig(),
		stream:  "dlq_stream",
		subject: "v1.dlq.leads",
		durable: durableName("v1.dlq.leads"),
		logger:  zaptest.NewLogger(t),
		router:  router,
		store:   store,
	}
	return w, router, store
}

func dlqMessage(t *testing.T, errorType string) []byte {
	t.Helper()
	data, err := json.Marshal(model.DLQPayload{
		SourceSubject:   "v1.leads.status.org_1",
		Organization:    "org_1",
		OriginalPayload: json.RawMessage(`{"lead_id":"lead-1","status":"contacted"}`),
		Error:           "status change: resource conflict",
		ErrorType:       errorType,
		RetryCount:      5,
		MaxRetry:        5,
		Timestamp:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func TestNewWorker_SetsUpStreamAndConsumer(t *testing.T) {
	client := new(jsmock.ClientMock)
	client.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == "dlq_stream" &&
			assert.Equal(t, []string{"v1.dlq.leads.>"}, sc.Subjects) &&
			sc.MaxAge == 30*24*time.Hour
	})).Return(nil)
	client.On("SetupConsumer", mock.Anything, "dlq_stream", mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return cc.Durable == "v1_dlq_leads_worker_consumer" &&
			cc.FilterSubject == "v1.dlq.leads.>" &&
			cc.MaxDeliver == 10 &&
			cc.AckPolicy == nats.AckExplicitPolicy
	})).Return(nil)

	w, err := NewWorker(testWorkerConfig(), "dlq_stream", "v1.dlq.leads", zaptest.NewLogger(t), client, new(ingestionmock.RouterMock), new(storagemock.DeadLetterRepoMock))
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	client.AssertExpectations(t)
}

func TestNewWorker_SetupErrors(t *testing.T) {
	client := new(jsmock.ClientMock)
	client.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("stream boom"))

	_, err := NewWorker(testWorkerConfig(), "dlq_stream", "v1.dlq.leads", zaptest.NewLogger(t), client, nil, nil)
	assert.ErrorContains(t, err, "failed to setup DLQ stream 'dlq_stream'")

	client = new(jsmock.ClientMock)
	client.On("SetupStream", mock.Anything, mock.Anything).Return(nil)
	client.On("SetupConsumer", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("consumer boom"))

	_, err = NewWorker(testWorkerConfig(), "dlq_stream", "v1.dlq.leads", zaptest.NewLogger(t), client, nil, nil)
	assert.ErrorContains(t, err, "failed to setup DLQ consumer")
}

func TestWorker_Start_SubscribeError(t *testing.T) {
	w, _, _ := newTestWorker(t)
	client := new(jsmock.ClientMock)
	client.On("SubscribePull", "dlq_stream", "v1.dlq.leads.>", "v1_dlq_leads_worker_consumer").Return(nil, apperrors.ErrNATS)
	w.js = client

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNATS)
}

func TestWorker_Handle_FatalIsArchived(t *testing.T) {
	w, router, store := newTestWorker(t)
	data := dlqMessage(t, "fatal")

	var saved *model.DeadLetter
	store.On("Save", mock.Anything, mock.AnythingOfType("*model.DeadLetter")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*model.DeadLetter) }).
		Return(nil)

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, data, 1)

	assert.Equal(t, 1, acker.acks)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything, mock.Anything)
	require.NotNil(t, saved)
	assert.Equal(t, "org_1", saved.OrganizationID)
	assert.Equal(t, "v1.leads.status.org_1", saved.SourceSubject)
	assert.Equal(t, "fatal", saved.ErrorType)
	assert.Equal(t, "status change: resource conflict", saved.LastError)
	assert.Equal(t, 5, saved.RetryCount)
	assert.JSONEq(t, `{"lead_id":"lead-1","status":"contacted"}`, string(saved.OriginalPayload))
	assert.JSONEq(t, string(data), string(saved.DLQPayload))
}

func TestWorker_Handle_RetryableIsReplayed(t *testing.T) {
	w, router, store := newTestWorker(t)

	router.On("Route", mock.Anything, mock.MatchedBy(func(md *model.MessageMetadata) bool {
		return md.MessageSubject == "v1.leads.status.org_1" && md.OrganizationID == "org_1" && md.NumDelivered == 6
	}), mock.Anything).Return(nil).Once()

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, dlqMessage(t, "retryable"), 1)

	assert.Equal(t, 1, acker.acks)
	router.AssertExpectations(t)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestWorker_Handle_ReplayFailureBacksOff(t *testing.T) {
	w, router, _ := newTestWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrDatabase, "status change"))

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, dlqMessage(t, "retryable"), 2)

	assert.Equal(t, []time.Duration{2 * time.Minute}, acker.delays)
	assert.Zero(t, acker.acks)
}

func TestWorker_Handle_ReplaysExhaustedAreArchived(t *testing.T) {
	w, router, store := newTestWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrDatabase, "still down"))

	var saved *model.DeadLetter
	store.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*model.DeadLetter) }).
		Return(nil)

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, dlqMessage(t, "retryable"), 3)

	assert.Equal(t, 1, acker.acks)
	require.NotNil(t, saved)
	assert.Contains(t, saved.LastError, "still down")
	assert.Equal(t, 8, saved.RetryCount)
}

func TestWorker_Handle_FatalReplayErrorIsArchived(t *testing.T) {
	w, router, store := newTestWorker(t)
	router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewFatal(apperrors.ErrLeadNotFound, "status change"))
	store.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, dlqMessage(t, "retryable"), 1)

	assert.Equal(t, 1, acker.acks)
	assert.Empty(t, acker.delays)
	store.AssertExpectations(t)
}

func TestWorker_Handle_ArchiveFailureNaks(t *testing.T) {
	w, _, store := newTestWorker(t)
	store.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrDatabase)

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, dlqMessage(t, "fatal"), 1)

	assert.Zero(t, acker.acks)
	assert.Equal(t, []time.Duration{time.Minute}, acker.delays)
}

func TestWorker_Handle_MalformedIsTerminated(t *testing.T) {
	w, _, store := newTestWorker(t)

	acker := &fakeAcker{}
	w.handle(context.Background(), acker, []byte("not json"), 1)

	assert.Equal(t, 1, acker.terms)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCalculateBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Minute},
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 4, want: 8 * time.Minute},
		{attempt: 10, want: 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateBackoffDelay(tt.attempt, time.Minute, 30*time.Minute), "attempt %d", tt.attempt)
	}
}
