package ingestion

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
	clientmock "gitlab.com/smilefunnel/api/lead-engine/internal/jetstream/mock"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// MockHandler is a mock of the EventHandler function
type MockHandler struct {
	mock.Mock
}

// Handle implements the EventHandler function signature
func (m *MockHandler) Handle(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// fakeAcker records how a delivery was settled.
type fakeAcker struct {
	acks   int
	naks   int
	delays []time.Duration
}

func (f *fakeAcker) Ack(...nats.AckOpt) error { f.acks++; return nil }
func (f *fakeAcker) Nak(...nats.AckOpt) error { f.naks++; return nil }
func (f *fakeAcker) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	f.delays = append(f.delays, d)
	return nil
}

const testDLQSubject = "v1.dlq.leads"

func testConsumerConfig() config.ConsumerNatsConfig {
	return config.ConsumerNatsConfig{
		Stream:       "leads_stream",
		Consumer:     "lead_engine",
		QueueGroup:   "lead_engine",
		SubjectList:  []string{"v1.leads.submissions", "v1.leads.status"},
		MaxAge:       7,
		MaxDeliver:   5,
		NakBaseDelay: time.Second,
		NakMaxDelay:  16 * time.Second,
	}
}

func setupTest(t *testing.T) (*clientmock.ClientMock, *Router, *LeadConsumer) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	mockClient := new(clientmock.ClientMock)
	router := NewRouter()
	return mockClient, router, NewLeadConsumer(mockClient, router, testConsumerConfig(), testDLQSubject)
}

func deliveryMetadata(subject string, numDelivered uint64) *model.MessageMetadata {
	return &model.MessageMetadata{
		StreamSequence: 42,
		NumDelivered:   numDelivered,
		MessageID:      "msg-42",
		MessageSubject: subject,
		OrganizationID: organizationFromSubject(subject),
	}
}

// --- Setup / Start / Stop --- //

func TestLeadConsumer_Setup(t *testing.T) {
	mockClient, _, consumer := setupTest(t)

	mockClient.On("SetupStream", mock.Anything, mock.MatchedBy(func(sc *nats.StreamConfig) bool {
		return sc.Name == "leads_stream" &&
			sc.Storage == nats.FileStorage &&
			sc.Retention == nats.LimitsPolicy &&
			sc.MaxAge == 7*24*time.Hour &&
			sc.Duplicates == 2*time.Minute &&
			assert.ElementsMatch(t, []string{"v1.leads.submissions.*", "v1.leads.status.*"}, sc.Subjects)
	})).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, "leads_stream", mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return cc.Durable == "lead_engine" &&
			cc.DeliverGroup == "lead_engine" &&
			assert.ElementsMatch(t, []string{"v1.leads.submissions.*", "v1.leads.status.*"}, cc.FilterSubjects) &&
			cc.AckPolicy == nats.AckExplicitPolicy &&
			cc.MaxDeliver == 5 &&
			cc.DeliverSubject != "" &&
			cc.DeliverPolicy == nats.DeliverAllPolicy
	})).Return(nil)

	assert.NoError(t, consumer.Setup())
	mockClient.AssertExpectations(t)
}

func TestLeadConsumer_Setup_SingleOrganization(t *testing.T) {
	mockClient, router, _ := setupTest(t)
	cfg := testConsumerConfig()
	cfg.Organization = "org_big"
	consumer := NewLeadConsumer(mockClient, router, cfg, testDLQSubject)

	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, "leads_stream", mock.MatchedBy(func(cc *nats.ConsumerConfig) bool {
		return assert.ElementsMatch(t, []string{"v1.leads.submissions.org_big", "v1.leads.status.org_big"}, cc.FilterSubjects)
	})).Return(nil)

	assert.NoError(t, consumer.Setup())
	mockClient.AssertExpectations(t)
}

func TestLeadConsumer_Setup_Errors(t *testing.T) {
	mockClient, _, consumer := setupTest(t)
	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(errors.New("stream boom")).Once()

	err := consumer.Setup()
	assert.ErrorContains(t, err, "failed to setup lead stream 'leads_stream'")
	mockClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)

	mockClient.On("SetupStream", mock.Anything, mock.Anything).Return(nil)
	mockClient.On("SetupConsumer", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("consumer boom"))
	err = consumer.Setup()
	assert.ErrorContains(t, err, "failed to setup lead consumer 'lead_engine'")
}

func TestLeadConsumer_StartAndStop(t *testing.T) {
	mockClient, _, consumer := setupTest(t)
	mockClient.On("SubscribePush", "v1.leads.>", "lead_engine", "lead_engine", "leads_stream", mock.Anything).
		Return((*nats.Subscription)(nil), nil).Once()

	require.NoError(t, consumer.Start())
	consumer.Stop()
	assert.Error(t, consumer.ctx.Err(), "Stop cancels the consumer context")
	mockClient.AssertExpectations(t)
}

func TestLeadConsumer_Start_Error(t *testing.T) {
	mockClient, _, consumer := setupTest(t)
	mockClient.On("SubscribePush", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("subscribe boom"))

	err := consumer.Start()
	assert.ErrorContains(t, err, "failed to subscribe lead consumer 'lead_engine'")
}

// --- Delivery settlement --- //

func TestLeadConsumer_Process_AckOnSuccess(t *testing.T) {
	mockClient, router, consumer := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1LeadSubmissions, forward(handler))

	md := deliveryMetadata("v1.leads.submissions.org_1", 1)
	handler.On("Handle", mock.Anything, model.V1LeadSubmissions, md, mock.Anything).Return(nil)

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`{}`), md, time.Now())

	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.naks)
	mockClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLeadConsumer_Process_RetryableNaksWithBackoff(t *testing.T) {
	_, router, consumer := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1LeadStatusChanges, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrConflict, "status change"))

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`{}`), deliveryMetadata("v1.leads.status.org_1", 3), time.Now())

	assert.Equal(t, []time.Duration{4 * time.Second}, acker.delays)
	assert.Zero(t, acker.acks)
}

func TestLeadConsumer_Process_FatalGoesToDLQ(t *testing.T) {
	mockClient, router, consumer := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1LeadSubmissions, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewFatal(apperrors.ErrInsufficientContact, "intake failed"))

	var published model.DLQPayload
	mockClient.On("Publish", mock.Anything, "v1.dlq.leads.org_1", mock.Anything, map[string]string{"Original-Nats-Msg-Id": "msg-42"}).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil).Once()

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`{"landing_page_id":"lp-1"}`), deliveryMetadata("v1.leads.submissions.org_1", 1), time.Now())

	assert.Equal(t, 1, acker.acks, "original is acked once parked")
	assert.Equal(t, "fatal", published.ErrorType)
	assert.Equal(t, "org_1", published.Organization)
	assert.Equal(t, "v1.leads.submissions.org_1", published.SourceSubject)
	assert.JSONEq(t, `{"landing_page_id":"lp-1"}`, string(published.OriginalPayload))
	assert.Equal(t, 5, published.MaxRetry)
	mockClient.AssertExpectations(t)
}

func TestLeadConsumer_Process_RetriesExhaustedGoToDLQ(t *testing.T) {
	mockClient, router, consumer := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1LeadStatusChanges, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrDatabase, "status change"))

	var published model.DLQPayload
	mockClient.On("Publish", mock.Anything, "v1.dlq.leads.org_1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &published))
		}).
		Return(nil)

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`{}`), deliveryMetadata("v1.leads.status.org_1", 5), time.Now())

	assert.Equal(t, 1, acker.acks)
	assert.Equal(t, "retryable", published.ErrorType)
	assert.Equal(t, uint64(5), published.RetryCount)
}

func TestLeadConsumer_Process_DLQPublishFailureNaks(t *testing.T) {
	mockClient, router, consumer := setupTest(t)
	handler := new(MockHandler)
	router.Register(model.V1LeadSubmissions, forward(handler))
	handler.On("Handle", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewFatal(errors.New("bad"), "intake failed"))
	mockClient.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(apperrors.ErrNATS)

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`{}`), deliveryMetadata("v1.leads.submissions.org_1", 1), time.Now())

	assert.Equal(t, 1, acker.naks)
	assert.Zero(t, acker.acks)
}

func TestLeadConsumer_Process_UnroutableSubject(t *testing.T) {
	mockClient, _, consumer := setupTest(t)
	mockClient.On("Publish", mock.Anything, "v1.dlq.leads.unknown", mock.Anything, mock.Anything).Return(nil)

	acker := &fakeAcker{}
	consumer.process(acker, []byte(`not json`), deliveryMetadata("v1.leads.submissions", 1), time.Now())

	assert.Equal(t, 1, acker.acks)
	mockClient.AssertExpectations(t)
}

// --- Helper Function Tests --- //

func TestDetermineAckNakAction(t *testing.T) {
	baseDelay := 1 * time.Second
	maxDelay := 16 * time.Second
	maxDeliver := 5
	retryable := apperrors.NewRetryable(errors.New("transient"), "transient")

	tests := []struct {
		name           string
		processingErr  error
		numDelivered   uint64
		maxDelay       time.Duration
		expectedAction AckNakAction
		expectedDelay  time.Duration
	}{
		{name: "Success case", numDelivered: 1, expectedAction: ActionAck},
		{name: "Retryable error, first attempt", processingErr: retryable, numDelivered: 1, expectedAction: ActionNakDelay, expectedDelay: 1 * time.Second},
		{name: "Retryable error, second attempt", processingErr: retryable, numDelivered: 2, expectedAction: ActionNakDelay, expectedDelay: 2 * time.Second},
		{name: "Retryable error, fourth attempt", processingErr: retryable, numDelivered: 4, expectedAction: ActionNakDelay, expectedDelay: 8 * time.Second},
		{name: "Retryable error, delay capped", processingErr: retryable, numDelivered: 4, maxDelay: 5 * time.Second, expectedAction: ActionNakDelay, expectedDelay: 5 * time.Second},
		{name: "Retryable error, maxDeliver reached", processingErr: retryable, numDelivered: 5, expectedAction: ActionDLQ},
		{name: "Fatal error, first attempt", processingErr: apperrors.NewFatal(errors.New("fatal"), "fatal"), numDelivered: 1, expectedAction: ActionDLQ},
		{name: "Unclassified error is fatal", processingErr: errors.New("some other error"), numDelivered: 1, expectedAction: ActionDLQ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capDelay := maxDelay
			if tt.maxDelay > 0 {
				capDelay = tt.maxDelay
			}
			action, delay := determineAckNakAction(tt.processingErr, tt.numDelivered, maxDeliver, baseDelay, capDelay)
			assert.Equal(t, tt.expectedAction, action, "Action should match")
			assert.Equal(t, tt.expectedDelay, delay, "Delay should match")
		})
	}
}

func TestModifySubjects(t *testing.T) {
	tests := []struct {
		name                 string
		inputSubjects        []string
		organizationID       string
		expectedStreamSubs   []string
		expectedConsumerSubs []string
	}{
		{
			name:                 "every organization",
			inputSubjects:        []string{"v1.leads.submissions", "v1.leads.status"},
			expectedStreamSubs:   []string{"v1.leads.submissions.*", "v1.leads.status.*"},
			expectedConsumerSubs: []string{"v1.leads.submissions.*", "v1.leads.status.*"},
		},
		{
			name:                 "single organization",
			inputSubjects:        []string{"v1.leads.submissions"},
			organizationID:       "org_a",
			expectedStreamSubs:   []string{"v1.leads.submissions.*"},
			expectedConsumerSubs: []string{"v1.leads.submissions.org_a"},
		},
		{
			name:                 "wildcard suffix tolerated",
			inputSubjects:        []string{"v1.leads.status.*"},
			expectedStreamSubs:   []string{"v1.leads.status.*"},
			expectedConsumerSubs: []string{"v1.leads.status.*"},
		},
		{
			name:          "empty input list",
			inputSubjects: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streamSubs, consumerSubs := modifySubjects(tt.inputSubjects, tt.organizationID)
			assert.Equal(t, tt.expectedStreamSubs, streamSubs)
			assert.Equal(t, tt.expectedConsumerSubs, consumerSubs)
		})
	}
}

func TestOrganizationFromSubject(t *testing.T) {
	assert.Equal(t, "org_1", organizationFromSubject("v1.leads.submissions.org_1"))
	assert.Equal(t, "org_1", organizationFromSubject("v1.leads.status.org_1"))
	assert.Equal(t, "", organizationFromSubject("v1.leads.submissions"))
	assert.Equal(t, "", organizationFromSubject("v1.contacts.org_1"))
	assert.Equal(t, "", organizationFromSubject("plain"))
}
