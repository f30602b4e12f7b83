package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/models"
)

func webhookContext(config map[string]any) Context {
	return Context{
		StoreID: "store-1",
		Enrollment: &models.Enrollment{
			ID:          "e1",
			StoreID:     "store-1",
			WorkflowID:  "wf-1",
			CustomerID:  "cust-1",
			TriggerData: map[string]any{"total": 42.0},
		},
		Config: config,
		Logger: slog.Default(),
	}
}

func TestWebhookAction_Success(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action := NewWebhookAction(nil)
	result := action.Execute(context.Background(), webhookContext(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Api-Key": "secret"},
		"payload": map[string]any{"event": "order"},
	}))

	assert.True(t, result.Success)
	assert.Equal(t, 200, result.Metadata["status_code"])
	assert.Equal(t, "cust-1", received["customer_id"])
	assert.Equal(t, "wf-1", received["workflow_id"])
	assert.Equal(t, "order", received["event"])
}

func TestWebhookAction_ClientErrorFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	action := NewWebhookAction(nil)
	result := action.Execute(context.Background(), webhookContext(map[string]any{"url": server.URL}))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "422")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookAction_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	caller := NewHTTPWebhookCaller(5 * time.Second)
	caller.backoff = time.Millisecond

	action := NewWebhookAction(caller)
	result := action.Execute(context.Background(), webhookContext(map[string]any{"url": server.URL}))

	assert.True(t, result.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookAction_MissingURL(t *testing.T) {
	action := NewWebhookAction(nil)
	result := action.Execute(context.Background(), webhookContext(map[string]any{}))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "url")
}
