package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/4xmen/peyk/internal/models"
)

// TokenPair is the access/refresh pair returned by the token endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a token pair. A 401 from the token
// endpoint means bad credentials, not an expired session.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, requestSpec{
		method:      http.MethodPost,
		url:         c.loginURL(),
		payload:     mustJSON(map[string]string{"username": username, "password": password}),
		contentType: "application/json",
	}, &pair)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return TokenPair{}, &AuthError{Detail: apiErr.Detail}
		}
		return TokenPair{}, err
	}
	return pair, nil
}

// BlacklistToken invalidates the refresh token server-side on logout.
func (c *Client) BlacklistToken(ctx context.Context, refreshToken string) error {
	return c.do(ctx, requestSpec{
		method:      http.MethodPost,
		url:         c.logoutURL(),
		payload:     mustJSON(map[string]string{"refresh": refreshToken}),
		contentType: "application/json",
		authed:      true,
	}, nil)
}

// Register creates a new account and returns the created profile.
func (c *Client) Register(ctx context.Context, name, username, email, password string) (models.User, error) {
	var user models.User
	err := c.do(ctx, requestSpec{
		method: http.MethodPost,
		url:    c.registerURL(),
		payload: mustJSON(map[string]string{
			"name":     name,
			"username": username,
			"email":    email,
			"password": password,
		}),
		contentType: "application/json",
	}, &user)
	return user, err
}
