package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDHeader(t *testing.T) {
	router := mux.NewRouter()
	AddRequestID(router)

	var requestID string
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		requestID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get("X-Request-Id"))
}

func TestContextWithLoggerIdentity(t *testing.T) {
	ctx, rlog := ContextWithLoggerIdentity(context.Background(), "4711")
	require.NotNil(t, rlog)
	assert.Equal(t, "4711", rlog.Data[identityLoggerKey])

	// the enriched logger is the one stored in the context
	assert.Equal(t, "4711", FromContext(ctx).Data[identityLoggerKey])
	assert.NotEmpty(t, RequestIDFromContext(ctx))
}

func TestRequestIDFromContextWithoutLogger(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(nil))
}
