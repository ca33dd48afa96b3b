// Package push delivers notifications to devices through the Expo push API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowermarket-svc/circuitbreaker"
	"flowermarket-svc/middleware"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"
	// Expo rejects requests carrying more messages than this.
	maxBatch = 100
)

type Message struct {
	To        string            `json:"to"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound"`
	Priority  string            `json:"priority"`
	ChannelID string            `json:"channelId"`
}

func NewMessage(token, title, body string, data map[string]string) Message {
	return Message{
		To:        token,
		Title:     title,
		Body:      body,
		Data:      data,
		Sound:     "default",
		Priority:  "high",
		ChannelID: "default",
	}
}

// UnsentError reports the messages a failed Send did not hand to Expo.
// Batches before the failing one were accepted and must not be sent again.
type UnsentError struct {
	Messages []Message
	Err      error
}

func (e *UnsentError) Error() string {
	return fmt.Sprintf("%d push messages unsent: %v", len(e.Messages), e.Err)
}

func (e *UnsentError) Unwrap() error { return e.Err }

type ticket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type sendResponse struct {
	Data []ticket `json:"data"`
}

type ExpoClient struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewExpoClient(url string, logger *zap.Logger) *ExpoClient {
	if url == "" {
		url = DefaultExpoURL
	}
	return &ExpoClient{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:  logger,
	}
}

// Send posts msgs in batches. Tickets rejected by Expo are logged and
// counted but do not fail the call; transport errors do, with an
// *UnsentError carrying the failed batch and everything after it.
func (c *ExpoClient) Send(ctx context.Context, msgs []Message) error {
	ctx, span := otel.Tracer("push").Start(ctx, "ExpoSend")
	defer span.End()
	span.SetAttributes(attribute.Int("push.messages", len(msgs)))

	for start := 0; start < len(msgs); start += maxBatch {
		end := min(start+maxBatch, len(msgs))
		batch := msgs[start:end]
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.post(ctx, batch)
		})
		if err != nil {
			span.RecordError(err)
			middleware.RecordPushSent("failed")
			return &UnsentError{Messages: msgs[start:], Err: err}
		}
	}
	return nil
}

func (c *ExpoClient) post(ctx context.Context, batch []Message) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("expo request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read expo response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("expo returned %d: %s", resp.StatusCode, payload)
	}

	var parsed sendResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("failed to decode expo response: %w", err)
	}
	for i, t := range parsed.Data {
		if t.Status == "ok" {
			middleware.RecordPushSent("ok")
			continue
		}
		middleware.RecordPushSent("rejected")
		token := ""
		if i < len(batch) {
			token = batch[i].To
		}
		c.logger.Warn("Push ticket rejected",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("token", token),
			zap.String("message", t.Message),
		)
	}
	return nil
}
