package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/4xmen/peyk/internal/models"
)

// Groups lists every conversation the user belongs to. The endpoint is
// paginated; a single page covers the sidebar.
func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	var resp struct {
		Results []models.Group `json:"results"`
	}
	if err := c.getJSON(ctx, c.groupsURL(), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GroupDetail fetches a single conversation.
func (c *Client) GroupDetail(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := c.getJSON(ctx, c.groupDetailURL(groupID), &group)
	return group, err
}

// CreateGroupChat creates a multi-party group. The server expects
// multipart form data because the group picture rides along.
func (c *Client) CreateGroupChat(ctx context.Context, name, description string, memberIDs []int, pictureName string, picture io.Reader) (models.Group, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	writer.WriteField("name", name)
	writer.WriteField("description", description)
	writer.WriteField("group_type", models.GroupTypeGroup)
	for _, id := range memberIDs {
		writer.WriteField("members", strconv.Itoa(id))
	}
	if picture != nil {
		part, err := writer.CreateFormFile("group_picture", pictureName)
		if err != nil {
			return models.Group{}, fmt.Errorf("failed to build upload: %w", err)
		}
		if _, err := io.Copy(part, picture); err != nil {
			return models.Group{}, fmt.Errorf("failed to read picture: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return models.Group{}, fmt.Errorf("failed to build upload: %w", err)
	}

	var group models.Group
	err := c.postMultipart(ctx, c.groupsURL(), buf.Bytes(), writer.FormDataContentType(), &group)
	return group, err
}

// CreatePrivateChat creates (or returns the existing) two-party chat
// with the given user.
func (c *Client) CreatePrivateChat(ctx context.Context, userID int) (models.Group, error) {
	var group models.Group
	err := c.postJSON(ctx, c.createPrivateChatURL(), map[string]int{"user_id": userID}, &group)
	return group, err
}

// UpdateGroup applies a partial update to a group's metadata.
func (c *Client) UpdateGroup(ctx context.Context, groupID int, fields map[string]interface{}) (models.Group, error) {
	var group models.Group
	err := c.patchJSON(ctx, c.groupDetailURL(groupID), fields, &group)
	return group, err
}

// DeleteGroup removes a conversation entirely.
func (c *Client) DeleteGroup(ctx context.Context, groupID int) error {
	return c.delete(ctx, c.groupDetailURL(groupID))
}

// LeaveGroup removes the caller from a group's membership.
func (c *Client) LeaveGroup(ctx context.Context, groupID int) error {
	return c.postJSON(ctx, c.leaveGroupURL(groupID), nil, nil)
}

// RemoveMember kicks another member out of a group (admin only).
func (c *Client) RemoveMember(ctx context.Context, groupID, userID int) error {
	return c.postJSON(ctx, c.removeMemberURL(groupID), map[string]int{"user_id": userID}, nil)
}
