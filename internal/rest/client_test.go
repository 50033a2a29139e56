package rest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/4xmen/peyk/internal/apitest"
	"github.com/4xmen/peyk/internal/models"
)

type fakeTokenStore struct {
	mu           sync.Mutex
	access       string
	refresh      string
	forceLogouts int
}

func (f *fakeTokenStore) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeTokenStore) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeTokenStore) SetTokens(access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = access
	f.refresh = refresh
}

func (f *fakeTokenStore) ForceLogout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.refresh = ""
	f.forceLogouts++
}

func (f *fakeTokenStore) logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forceLogouts
}

func newTestClient(t *testing.T) (*apitest.Server, *Client, *fakeTokenStore) {
	t.Helper()

	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser(models.User{ID: 1, Name: "Alice", Username: "alice", Email: "alice@example.com"}, "secret")

	client := NewClient(srv.APIBaseURL(), 5*time.Second)
	tokens := &fakeTokenStore{}
	client.SetTokenStore(tokens)
	return srv, client, tokens
}

func login(t *testing.T, client *Client, tokens *fakeTokenStore) {
	t.Helper()
	pair, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	tokens.SetTokens(pair.Access, pair.Refresh)
}

func TestLoginReturnsTokenPair(t *testing.T) {
	_, client, _ := newTestClient(t)

	pair, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("Login returned incomplete pair: %+v", pair)
	}
}

func TestLoginBadCredentialsIsAuthError(t *testing.T) {
	_, client, _ := newTestClient(t)

	_, err := client.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatalf("Login with bad password succeeded")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
}

func TestExpiredAccessTriggersExactlyOneRefresh(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	login(t, client, tokens)

	srv.ExpireAccess()

	user, err := client.UserInfo(context.Background())
	if err != nil {
		t.Fatalf("UserInfo after expiry failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user after retry: %+v", user)
	}
	if calls := srv.RefreshCalls(); calls != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", calls)
	}
	if tokens.AccessToken() == "" {
		t.Fatalf("token store not updated after refresh")
	}
}

func TestFailedRefreshClearsSession(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	login(t, client, tokens)

	srv.ExpireAccess()
	srv.SetFailRefresh(true)

	_, err := client.UserInfo(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if tokens.logouts() != 1 {
		t.Fatalf("ForceLogout called %d times, want 1", tokens.logouts())
	}
	if calls := srv.RefreshCalls(); calls != 1 {
		t.Fatalf("refresh endpoint called %d times, want 1", calls)
	}
}

func TestRefreshKeepsOldRefreshTokenWithoutRotation(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	login(t, client, tokens)
	oldRefresh := tokens.RefreshToken()

	srv.ExpireAccess()
	if _, err := client.UserInfo(context.Background()); err != nil {
		t.Fatalf("UserInfo after expiry failed: %v", err)
	}

	if tokens.RefreshToken() != oldRefresh {
		t.Fatalf("refresh token replaced even though the server did not rotate it")
	}
}

func TestServerErrorSurfacedAsAPIError(t *testing.T) {
	_, client, tokens := newTestClient(t)
	login(t, client, tokens)

	_, err := client.GroupDetail(context.Background(), 9999)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 404 {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Detail == "" {
		t.Fatalf("error detail not extracted from body")
	}
}

func TestUpdateProfileAppliesFields(t *testing.T) {
	_, client, tokens := newTestClient(t)
	login(t, client, tokens)

	user, err := client.UpdateProfile(context.Background(), map[string]interface{}{
		"name":  "Alicia",
		"email": "alicia@example.com",
	})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if user.Name != "Alicia" || user.Email != "alicia@example.com" {
		t.Fatalf("unexpected profile after update: %+v", user)
	}

	fetched, err := client.UserInfo(context.Background())
	if err != nil {
		t.Fatalf("UserInfo failed: %v", err)
	}
	if fetched.Name != "Alicia" {
		t.Fatalf("update not visible on refetch: %+v", fetched)
	}
}

func TestUpdateProfilePictureUploads(t *testing.T) {
	_, client, tokens := newTestClient(t)
	login(t, client, tokens)

	user, err := client.UpdateProfilePicture(context.Background(), "avatar.png", strings.NewReader("fake-png-bytes"))
	if err != nil {
		t.Fatalf("UpdateProfilePicture failed: %v", err)
	}
	if user.ProfilePicture == nil || !strings.HasSuffix(*user.ProfilePicture, "avatar.png") {
		t.Fatalf("profile picture not recorded: %+v", user.ProfilePicture)
	}
}

func TestUpdateGroupRenames(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	srv.SeedGroup(models.Group{ID: 10, Name: "Old Name", GroupType: models.GroupTypeGroup}, nil)
	login(t, client, tokens)

	group, err := client.UpdateGroup(context.Background(), 10, map[string]interface{}{"name": "New Name"})
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if group.Name != "New Name" {
		t.Fatalf("group name = %q, want %q", group.Name, "New Name")
	}

	detail, err := client.GroupDetail(context.Background(), 10)
	if err != nil {
		t.Fatalf("GroupDetail failed: %v", err)
	}
	if detail.Name != "New Name" {
		t.Fatalf("rename not visible on refetch: %+v", detail)
	}
}

func TestRemoveMemberShrinksGroup(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	srv.SeedGroup(models.Group{
		ID:        10,
		Name:      "Team",
		GroupType: models.GroupTypeGroup,
		Members:   []models.Member{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}},
	}, nil)
	login(t, client, tokens)

	if err := client.RemoveMember(context.Background(), 10, 2); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}

	detail, err := client.GroupDetail(context.Background(), 10)
	if err != nil {
		t.Fatalf("GroupDetail failed: %v", err)
	}
	if len(detail.Members) != 1 || detail.Members[0].ID != 1 {
		t.Fatalf("unexpected members after removal: %+v", detail.Members)
	}
}

func TestUpdateMessageStatusPersists(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	srv.SeedGroup(models.Group{ID: 10, Name: "Team", GroupType: models.GroupTypeGroup}, []models.Message{
		{ID: 501, Group: 10, Sender: 2, Content: "hi", Status: models.MessageStatusSent},
	})
	login(t, client, tokens)

	if err := client.UpdateMessageStatus(context.Background(), 501, models.MessageStatusDelivered); err != nil {
		t.Fatalf("UpdateMessageStatus failed: %v", err)
	}

	history, err := client.Messages(context.Background(), 10)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(history) != 1 || history[0].Status != models.MessageStatusDelivered {
		t.Fatalf("status not persisted: %+v", history)
	}

	err = client.UpdateMessageStatus(context.Background(), 99999, models.MessageStatusRead)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 *APIError for unknown message, got %v", err)
	}
}

func TestSearchUsersParsesWrapper(t *testing.T) {
	srv, client, tokens := newTestClient(t)
	srv.AddUser(models.User{ID: 2, Name: "Bob", Username: "bob"}, "pw")
	login(t, client, tokens)

	users, err := client.SearchUsers(context.Background(), "bob")
	if err != nil {
		t.Fatalf("SearchUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Fatalf("unexpected search result: %+v", users)
	}
}
