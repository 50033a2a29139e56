package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/4xmen/peyk/internal/models"
)

// UserInfo fetches the authenticated user's profile.
func (c *Client) UserInfo(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.getJSON(ctx, c.userInfoURL(), &user)
	return user, err
}

// UpdateProfile applies a partial profile update. Only the keys present
// in fields are touched server-side.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]interface{}) (models.User, error) {
	var user models.User
	err := c.patchJSON(ctx, c.userProfileURL(), fields, &user)
	return user, err
}

// UpdateProfilePicture uploads a new profile picture as multipart form data.
func (c *Client) UpdateProfilePicture(ctx context.Context, fileName string, picture io.Reader) (models.User, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("profile_picture", fileName)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, picture); err != nil {
		return models.User{}, fmt.Errorf("failed to read picture: %w", err)
	}
	if err := writer.Close(); err != nil {
		return models.User{}, fmt.Errorf("failed to build upload: %w", err)
	}

	var user models.User
	err = c.do(ctx, requestSpec{
		method:      "PATCH",
		url:         c.userProfileURL(),
		payload:     buf.Bytes(),
		contentType: writer.FormDataContentType(),
		authed:      true,
	}, &user)
	return user, err
}

// SearchUsers queries the user directory.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.Member, error) {
	var resp struct {
		Users []models.Member `json:"users"`
	}
	searchURL := c.userSearchURL() + "?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// BlockUser blocks another user.
func (c *Client) BlockUser(ctx context.Context, userID int) error {
	return c.postJSON(ctx, c.blockUserURL(), map[string]int{"user_id": userID}, nil)
}

// UnblockUser removes a block.
func (c *Client) UnblockUser(ctx context.Context, userID int) error {
	return c.delete(ctx, c.unblockUserURL(userID))
}

// BlockedUsers lists the caller's blocks.
func (c *Client) BlockedUsers(ctx context.Context) ([]models.BlockedUser, error) {
	var blocked []models.BlockedUser
	if err := c.getJSON(ctx, c.blockedUsersURL(), &blocked); err != nil {
		return nil, err
	}
	return blocked, nil
}
