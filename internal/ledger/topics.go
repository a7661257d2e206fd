package ledger

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CreateTopic opens a consensus topic and returns its ID.
func (c *Client) CreateTopic(ctx context.Context, memo string) (string, error) {
	var resp struct {
		envelope
		TopicID string `json:"topicId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/hcs/create-topic", map[string]string{"memo": memo}, &resp); err != nil {
		return "", fmt.Errorf("failed to create topic: %w", err)
	}
	if !resp.Success || resp.TopicID == "" {
		return "", fmt.Errorf("failed to create topic: %s", resp.Error)
	}
	return resp.TopicID, nil
}

// SubmitMessage appends message to topicID.
func (c *Client) SubmitMessage(ctx context.Context, topicID, message string) error {
	var resp envelope
	err := c.do(ctx, http.MethodPost, "/api/hcs/submit", map[string]string{
		"topicId":   topicID,
		"message":   message,
		"timestamp": c.now().UTC().Format(time.RFC3339),
		"sessionId": topicID,
	}, &resp)
	if err != nil {
		return fmt.Errorf("failed to submit topic message: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("failed to submit topic message: %s", resp.Error)
	}
	return nil
}

// AuditLog records chat transcripts on one topic per session.
type AuditLog struct {
	client *Client
}

func NewAuditLog(c *Client) *AuditLog {
	return &AuditLog{client: c}
}

func (a *AuditLog) CreateChannel(ctx context.Context, sessionID string) (string, error) {
	return a.client.CreateTopic(ctx, "ParkPulse Chat Session "+sessionID)
}

// Append writes "<role>:<text>" to the session topic.
func (a *AuditLog) Append(ctx context.Context, handle, role, text string) error {
	return a.client.SubmitMessage(ctx, handle, role+":"+text)
}
