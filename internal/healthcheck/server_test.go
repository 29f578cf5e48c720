package healthcheck

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	jsmock "gitlab.com/smilefunnel/api/lead-engine/internal/jetstream/mock"
	storagemock "gitlab.com/smilefunnel/api/lead-engine/internal/storage/mock"
)

func serve(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body HealthResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	s := NewServer(Options{Port: 8080, Version: "1.4.0"}, zaptest.NewLogger(t), nil, nil)

	rec, body := serve(t, s, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UP", body.Status)
	assert.Equal(t, "1.4.0", body.Version)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name      string
		pingErr   error
		connected bool
		code      int
		status    string
		database  string
		nats      string
	}{
		{name: "all up", connected: true, code: http.StatusOK, status: "READY", database: "UP", nats: "UP"},
		{name: "database down", pingErr: errors.New("refused"), connected: true, code: http.StatusServiceUnavailable, status: "NOT_READY", database: "DOWN", nats: "UP"},
		{name: "nats down", connected: false, code: http.StatusServiceUnavailable, status: "NOT_READY", database: "UP", nats: "DOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(storagemock.PingerMock)
			db.On("Ping", mock.Anything).Return(tt.pingErr).Once()
			broker := new(jsmock.ClientMock)
			broker.On("IsConnected").Return(tt.connected).Once()
			s := NewServer(Options{Port: 8080}, zaptest.NewLogger(t), db, broker)

			rec, body := serve(t, s, "/ready")

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, tt.database, body.Details["database"])
			assert.Equal(t, tt.nats, body.Details["nats"])
			assert.NotEmpty(t, body.Details["timestamp"])
			db.AssertExpectations(t)
			broker.AssertExpectations(t)
		})
	}
}

func TestRegisterMetricsAndMountAPI(t *testing.T) {
	s := NewServer(Options{Port: 8080}, zaptest.NewLogger(t), nil, nil)
	s.RegisterMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}))
	s.MountAPI(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("api " + r.URL.Path))
	}))

	rec, _ := serve(t, s, "/metrics")
	assert.Equal(t, "metrics", rec.Body.String())

	rec, _ = serve(t, s, "/v1/leads")
	assert.Equal(t, "api /v1/leads", rec.Body.String())

	rec, body := serve(t, s, "/health")
	assert.Equal(t, "UP", body.Status)
	assert.Equal(t, http.StatusOK, rec.Code)
}
