package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leadmill/leadmill/pkg/models"
)

// WebhookAction performs an outbound HTTP call with the customer and trigger
// payload. Non-2xx responses fail the step.
type WebhookAction struct {
	caller WebhookCaller
}

func NewWebhookAction(caller WebhookCaller) *WebhookAction {
	if caller == nil {
		caller = NewHTTPWebhookCaller(30 * time.Second)
	}

	return &WebhookAction{caller: caller}
}

func (a *WebhookAction) Type() models.StepType {
	return models.StepWebhook
}

func (a *WebhookAction) Execute(ctx context.Context, actx Context) Result {
	url, _ := actx.Config["url"].(string)
	if url == "" {
		return failure("webhook step is missing url")
	}

	method, _ := actx.Config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := map[string]string{}
	if raw, ok := actx.Config["headers"].(map[string]any); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				headers[key] = s
			}
		}
	}

	// Copied so the step config itself is never mutated.
	payload := map[string]any{}
	if raw, ok := actx.Config["payload"].(map[string]any); ok {
		for key, value := range raw {
			payload[key] = value
		}
	}

	payload["customer_id"] = actx.Enrollment.CustomerID
	payload["workflow_id"] = actx.Enrollment.WorkflowID
	payload["trigger_data"] = actx.TriggerData()

	status, err := a.caller.Call(ctx, WebhookRequest{
		URL:     url,
		Method:  method,
		Headers: headers,
		Payload: payload,
	})
	if err != nil {
		return failure("webhook call failed: " + err.Error())
	}

	if status < 200 || status >= 300 {
		return failure(fmt.Sprintf("webhook returned status %d", status))
	}

	return Result{
		Success:  true,
		Metadata: map[string]any{"status_code": status, "url": url},
	}
}

// HTTPWebhookCaller is the default WebhookCaller. It retries transport
// failures and 5xx responses with a short backoff; 4xx responses are not
// retried since they will not improve on their own.
type HTTPWebhookCaller struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

func NewHTTPWebhookCaller(timeout time.Duration) *HTTPWebhookCaller {
	return &HTTPWebhookCaller{
		client:  &http.Client{Timeout: timeout},
		retries: 3,
		backoff: time.Second,
	}
}

func (c *HTTPWebhookCaller) Call(ctx context.Context, request WebhookRequest) (int, error) {
	body, err := json.Marshal(request.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastStatus, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, request.Method, request.URL, bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("failed to build webhook request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		for key, value := range request.Headers {
			req.Header.Set(key, value)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err

			continue
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		lastStatus = resp.StatusCode
		lastErr = nil

		if resp.StatusCode < 500 {
			return resp.StatusCode, nil
		}
	}

	return lastStatus, lastErr
}
