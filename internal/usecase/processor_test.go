package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/smilefunnel/api/lead-engine/internal/config"
	handlermock "gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/handler/mock"
	ingestionmock "gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/mock"
	jsmock "gitlab.com/smilefunnel/api/lead-engine/internal/jetstream/mock"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// createDummyConfig creates a minimal config for processor tests
func createDummyConfig() *config.Config {
	var cfg config.Config
	cfg.NATS.Leads = config.ConsumerNatsConfig{
		Stream:      "leads-stream",
		Consumer:    "leads-consumer",
		QueueGroup:  "leads-group",
		SubjectList: []string{"v1.leads.submissions", "v1.leads.status"},
		MaxDeliver:  5,
	}
	cfg.NATS.DLQSubject = "v1.dlq.leads"
	return &cfg
}

func useTestLogger(t *testing.T) {
	originalLogger := logger.Log
	logger.Log = zaptest.NewLogger(t).Named(t.Name())
	t.Cleanup(func() { logger.Log = originalLogger })
}

func TestNewProcessor(t *testing.T) {
	useTestLogger(t)

	mockService := new(handlermock.MockLeadService)
	mockJSClient := new(jsmock.ClientMock)

	processor := NewProcessor(mockService, mockJSClient, createDummyConfig())

	assert.NotNil(t, processor)
	assert.Equal(t, mockService, processor.service)
	assert.Equal(t, mockJSClient, processor.jsClient)
	assert.NotNil(t, processor.consumer)
	assert.NotNil(t, processor.GetRouter())
	assert.NotNil(t, processor.leadHandler)
}

func TestProcessor_Setup(t *testing.T) {
	useTestLogger(t)

	mockJSClient := new(jsmock.ClientMock)
	mockRouter := new(ingestionmock.RouterMock)
	cfg := createDummyConfig()

	processor := NewProcessor(new(handlermock.MockLeadService), mockJSClient, cfg)
	processor.eventRouter = mockRouter
	processor.leadHandler = new(handlermock.MockLeadHandler)

	mockRouter.On("Register", model.V1LeadSubmissions, mock.Anything).Return().Once()
	mockRouter.On("Register", model.V1LeadStatusChanges, mock.Anything).Return().Once()
	mockRouter.On("RegisterDefault", mock.Anything).Return().Once()
	mockJSClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(nil).Once()
	mockJSClient.On("SetupConsumer", mock.Anything, cfg.NATS.Leads.Stream, mock.AnythingOfType("*nats.ConsumerConfig")).Return(nil).Once()

	err := processor.Setup()

	assert.NoError(t, err)
	mockRouter.AssertExpectations(t)
	mockJSClient.AssertExpectations(t)
}

func TestProcessor_Setup_DefaultHandlerSwallowsUnknownEvents(t *testing.T) {
	useTestLogger(t)

	mockJSClient := new(jsmock.ClientMock)
	mockJSClient.On("SetupStream", mock.Anything, mock.Anything).Return(nil)
	mockJSClient.On("SetupConsumer", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	processor := NewProcessor(new(handlermock.MockLeadService), mockJSClient, createDummyConfig())
	require.NoError(t, processor.Setup())

	err := processor.GetRouter().Route(context.Background(), &model.MessageMetadata{MessageSubject: "v2.leads.unknown"}, []byte(`{}`))
	assert.NoError(t, err)
}

func TestProcessor_Setup_ConsumerError(t *testing.T) {
	useTestLogger(t)

	mockJSClient := new(jsmock.ClientMock)
	mockRouter := new(ingestionmock.RouterMock)
	processor := NewProcessor(new(handlermock.MockLeadService), mockJSClient, createDummyConfig())
	processor.eventRouter = mockRouter

	mockRouter.On("Register", mock.Anything, mock.Anything).Return().Times(2)
	mockRouter.On("RegisterDefault", mock.Anything).Return()

	expectedErr := errors.New("lead stream setup failed")
	mockJSClient.On("SetupStream", mock.Anything, mock.AnythingOfType("*nats.StreamConfig")).Return(expectedErr).Once()

	err := processor.Setup()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), expectedErr.Error())
	assert.Contains(t, err.Error(), "failed to setup lead consumer")
	mockJSClient.AssertNotCalled(t, "SetupConsumer", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessor_StartStop(t *testing.T) {
	useTestLogger(t)

	mockConsumer := new(ingestionmock.ConsumerMock)
	processor := NewProcessor(new(handlermock.MockLeadService), new(jsmock.ClientMock), createDummyConfig())
	processor.consumer = mockConsumer

	mockConsumer.On("Start").Return(nil).Once()
	mockConsumer.On("Stop").Return().Once()

	assert.NoError(t, processor.Start())
	processor.Stop()
	mockConsumer.AssertExpectations(t)
}

func TestProcessor_Start_Error(t *testing.T) {
	useTestLogger(t)

	mockJSClient := new(jsmock.ClientMock)
	processor := NewProcessor(new(handlermock.MockLeadService), mockJSClient, createDummyConfig())

	expectedErr := errors.New("subscribe failed")
	mockJSClient.On("SubscribePush", "v1.leads.>", "leads-consumer", "leads-group", "leads-stream", mock.AnythingOfType("nats.MsgHandler")).
		Return(nil, expectedErr).Once()

	err := processor.Start()

	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "failed to start lead consumer")
	mockJSClient.AssertExpectations(t)
}
