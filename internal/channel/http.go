package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

// HTTPAdapter hands messages to a carrier gateway over JSON/HTTP.
type HTTPAdapter struct {
	url    string
	client *http.Client
}

func NewHTTPAdapter(url string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdapter{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	MessageID      string             `json:"messageId"`
	ConversationID string             `json:"conversationId"`
	Channel        string             `json:"channel"`
	To             string             `json:"to,omitempty"`
	Message        string             `json:"message"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode"`
}

func (c *HTTPAdapter) Attempt(ctx context.Context, m model.Message) Outcome {
	reqBody, err := json.Marshal(sendRequest{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Channel:        string(m.Channel),
		To:             m.Recipient,
		Message:        m.Text,
		Attachments:    m.Attachments,
	})
	if err != nil {
		return TerminalFailure(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return TerminalFailure(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	// Gateways dedupe on this key, which makes repeated attempts safe.
	req.Header.Set("Idempotency-Key", m.ID)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return RetryableFailure("delivery attempt timed out")
		}
		return RetryableFailure(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return RetryableFailure(fmt.Sprintf("unexpected status code: %d body=%q", resp.StatusCode, string(body)))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return accepted(body)
	default:
		return rejected(resp.StatusCode, body)
	}
}

func accepted(body []byte) Outcome {
	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return RetryableFailure(fmt.Sprintf("failed to decode json: %v body=%q", err, string(body)))
	}
	if sr.MessageID == "" {
		return RetryableFailure(fmt.Sprintf("missing messageId in response body=%q", string(body)))
	}

	var out Outcome
	switch model.Status(sr.Status) {
	case model.StatusDelivered:
		out = Delivered()
	case model.StatusQueued:
		out = Queued()
	default:
		out = Sent()
	}
	out.ProviderRef = sr.MessageID
	return out
}

// rejected handles 4xx answers. A client error does not fix itself on retry
// unless the carrier code says the cause was transient.
func rejected(status int, body []byte) Outcome {
	reason := fmt.Sprintf("unexpected status code: %d body=%q", status, string(body))

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err == nil && sr.ErrorCode != "" {
		reason = fmt.Sprintf("%s: %s", sr.ErrorCode, sr.Message)
	}

	switch Classify(reason) {
	case KindNetwork, KindThrottled:
		return RetryableFailure(reason)
	default:
		return TerminalFailure(reason)
	}
}
