package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetricsHandlerExportsCounters(t *testing.T) {
	p, err := Setup(Options{ServiceName: "chat-test", TraceOutput: io.Discard})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := otel.Meter("test").Int64Counter("chat_test_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	w := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_test_events_total")
}
