package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"k8s.io/klog/v2"
)

// captureKlog redirects klog into a buffer for the duration of fn.
func captureKlog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	klog.LogToStderr(false)
	klog.SetOutput(&buf)
	defer func() {
		klog.LogToStderr(true)
		klog.SetOutput(os.Stderr)
	}()
	fn()
	klog.Flush()
	return buf.String()
}

func TestLoggingMiddleware(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name          string
		traced        bool
		target        string
		correlationID string
		want          []string
		notWant       []string
	}{
		{
			name:          "traced arithmetic call",
			traced:        true,
			target:        "/api/v1/division?a=10&b=3",
			correlationID: "corr-1",
			want: []string{
				`status=200`, `method="GET"`, `path="/api/v1/division"`,
				`query="a=10&b=3"`, `correlationID="corr-1"`,
			},
		},
		{
			name:    "untraced probe",
			target:  "/api/v1/healthz",
			want:    []string{`path="/api/v1/healthz"`, `query=""`, `traceID="00000000000000000000000000000000"`},
			notWant: []string{"correlationID"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()
			router := gin.New()
			if tt.traced {
				router.Use(otelgin.Middleware("calcbridge-test"))
			}
			router.Use(Logging())
			router.GET("/api/v1/:op", func(c *gin.Context) {
				if tt.correlationID != "" {
					c.Header("X-Request-ID", tt.correlationID)
				}
				c.String(http.StatusOK, "ok")
			})

			w := httptest.NewRecorder()
			out := captureKlog(t, func() {
				router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.target, nil))
			})
			require.Equal(t, http.StatusOK, w.Code)
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}

			if tt.traced {
				spans := exporter.GetSpans()
				require.Len(t, spans, 1)
				assert.Contains(t, out, `traceID="`+spans[0].SpanContext.TraceID().String()+`"`)
				assert.Contains(t, out, `spanID="`+spans[0].SpanContext.SpanID().String()+`"`)
			}
		})
	}
}
