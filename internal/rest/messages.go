package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/4xmen/peyk/internal/models"
	"github.com/google/uuid"
)

// Messages fetches a conversation's message history, oldest first.
func (c *Client) Messages(ctx context.Context, groupID int) ([]models.Message, error) {
	var resp struct {
		Results []models.Message `json:"results"`
	}
	if err := c.getJSON(ctx, c.messagesURL(groupID), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SendMessage posts a text message. The client_message_id lets the
// server correlate the HTTP echo with the socket broadcast of the same
// message; dedup on the receiving side is by server-assigned id.
func (c *Client) SendMessage(ctx context.Context, groupID int, content string) (models.Message, error) {
	var message models.Message
	err := c.postJSON(ctx, c.messagesURL(groupID), map[string]interface{}{
		"content":           content,
		"message_type":      models.MessageTypeText,
		"client_message_id": uuid.NewString(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}, &message)
	return message, err
}

// SendFileMessage posts a message with a file attachment.
func (c *Client) SendFileMessage(ctx context.Context, groupID int, content, fileName string, file io.Reader) (models.Message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	writer.WriteField("content", content)
	writer.WriteField("message_type", models.MessageTypeText)
	writer.WriteField("client_message_id", uuid.NewString())
	part, err := writer.CreateFormFile("file_attachment", fileName)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return models.Message{}, fmt.Errorf("failed to read file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return models.Message{}, fmt.Errorf("failed to build upload: %w", err)
	}

	var message models.Message
	err = c.postMultipart(ctx, c.messagesURL(groupID), buf.Bytes(), writer.FormDataContentType(), &message)
	return message, err
}

// DeleteMessage removes a single message.
func (c *Client) DeleteMessage(ctx context.Context, messageID int) error {
	return c.delete(ctx, c.deleteMessageURL(messageID))
}

// UpdateMessageStatus reports a delivered/read transition for one message.
func (c *Client) UpdateMessageStatus(ctx context.Context, messageID int, status string) error {
	return c.postJSON(ctx, c.messageStatusURL(messageID), map[string]string{"status": status}, nil)
}

// MarkMessagesRead bulk-marks a conversation's messages as read and
// returns how many were affected.
func (c *Client) MarkMessagesRead(ctx context.Context, groupID int) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.postJSON(ctx, c.markMessagesReadURL(groupID), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}
