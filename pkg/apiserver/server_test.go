package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/event"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/interfaces/api"
)

func startBridge(t *testing.T, wireFormat string) *restServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := *config.NewConfig()
	cfg.Messaging.WireFormat = wireFormat
	cfg.Correlator.Timeout = 2 * time.Second

	s := newRestServer(cfg)
	require.NoError(t, s.buildIoCContainer())
	s.RegisterAPIRoute()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		event.StartEventWorker(ctx, make(chan error, 1))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.close()
	})
	for _, ready := range []<-chan struct{}{s.correlator.Ready(), s.calculator.Ready()} {
		select {
		case <-ready:
		case <-time.After(2 * time.Second):
			t.Fatal("bridge did not start")
		}
	}
	return s
}

func call(s *restServer, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestBridgeEndToEnd(t *testing.T) {
	for _, format := range []string{config.WireFormatLegacy, config.WireFormatJSON} {
		t.Run(format, func(t *testing.T) {
			s := startBridge(t, format)

			w := call(s, "/api/v1/division?a=10&b=3")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.JSONEq(t, `{"result":3.333333333}`, w.Body.String())
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

			w = call(s, "/api/sum?a=0.1&b=0.2")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"result":0.3}`, w.Body.String())

			w = call(s, "/api/v1/divide?a=10&b=2")
			assert.JSONEq(t, `{"result":5}`, w.Body.String())

			w = call(s, "/api/v1/divide?a=1&b=0")
			require.Equal(t, http.StatusBadRequest, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "Division by zero is not allowed", body["error"])

			w = call(s, "/api/v1/readyz")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"correlator"`)
			assert.Contains(t, w.Body.String(), `"calculator"`)

			assert.Equal(t, 0, s.correlator.Stats().Pending)
		})
	}
}

func TestRebuiltServerDoesNotReuseBeans(t *testing.T) {
	cfg := *config.NewConfig()
	first := newRestServer(cfg)
	require.NoError(t, first.buildIoCContainer())
	firstAPIs := append([]api.Interface(nil), api.GetRegisteredAPI()...)
	first.close()

	second := newRestServer(cfg)
	require.NoError(t, second.buildIoCContainer())
	defer second.close()

	workers := event.GetWorkers()
	require.Len(t, workers, 2)
	assert.Same(t, second.correlator, workers[0])
	assert.Same(t, second.calculator, workers[1])

	apis := api.GetRegisteredAPI()
	require.Len(t, apis, len(firstAPIs))
	for i := range apis {
		assert.NotSame(t, firstAPIs[i], apis[i])
	}
}

func TestNewBrokerSelectsType(t *testing.T) {
	cfg := *config.NewConfig()
	b, err := NewBroker(cfg)
	require.NoError(t, err)
	assert.IsType(t, &messaging.MemoryBroker{}, b)

	cfg.Messaging.Type = "rabbitmq"
	_, err = NewBroker(cfg)
	require.Error(t, err)
}

func TestNewReplayCache(t *testing.T) {
	cfg := *config.NewConfig()
	assert.False(t, NewReplayCache(cfg).IsCacheDisabled())
	cfg.Calculator.ReplayCache = config.ReplayCacheNone
	assert.True(t, NewReplayCache(cfg).IsCacheDisabled())
}
