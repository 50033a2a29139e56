// Package session owns the authentication state: the access/refresh
// token pair and the cached user profile. Every mutation is persisted to
// a local SQLite database so the session survives restarts.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/4xmen/peyk/internal/models"
	"github.com/4xmen/peyk/internal/rest"
)

// storageKey is the fixed row name the session is stored under. Only one
// session per database file.
const storageKey = "auth-storage"

type Store struct {
	api *rest.Client
	db  *sql.DB

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	user          *models.User
	authenticated bool
	watchers      []func(accessToken string)
}

// New opens (creating if needed) the session database at path, loads any
// persisted session and wires the store into the REST client as its
// token source.
func New(api *rest.Client, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// Two CLI invocations can share this file; WAL and a busy timeout
	// keep concurrent access from failing with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS session (
		name TEXT PRIMARY KEY,
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		user_json TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	s := &Store{api: api, db: db}
	if err := s.load(); err != nil {
		log.Printf("[session] could not restore persisted session: %v", err)
	}
	api.SetTokenStore(s)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Login exchanges credentials for tokens and fetches the profile. On bad
// credentials the error is a *rest.AuthError.
func (s *Store) Login(ctx context.Context, username, password string) error {
	pair, err := s.api.Login(ctx, username, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = pair.Access
	s.refreshToken = pair.Refresh
	s.authenticated = true
	s.persistLocked()
	s.mu.Unlock()
	s.notifyWatchers(pair.Access)

	return s.FetchUser(ctx)
}

// FetchUser loads the profile with the current access token. A failure
// means the token no longer works, so the session is torn down.
func (s *Store) FetchUser(ctx context.Context) error {
	user, err := s.api.UserInfo(ctx)
	if err != nil {
		log.Printf("[session] failed to fetch user, logging out: %v", err)
		s.Logout(ctx)
		return err
	}

	s.mu.Lock()
	s.user = &user
	s.persistLocked()
	s.mu.Unlock()
	return nil
}

// Logout tells the backend to blacklist the refresh token, then clears
// local state whether or not that call worked.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	refresh := s.refreshToken
	s.mu.Unlock()

	if refresh != "" {
		if err := s.api.BlacklistToken(ctx, refresh); err != nil {
			log.Printf("[session] token blacklist failed (ignored): %v", err)
		}
	}
	s.clear()
}

// SetTokens hot-swaps the token pair without touching the rest of the
// session. Called by the REST client after a successful refresh.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	s.accessToken = access
	s.refreshToken = refresh
	s.authenticated = true
	s.persistLocked()
	s.mu.Unlock()
	s.notifyWatchers(access)
}

// ForceLogout clears the session without any network traffic. Called by
// the REST client when a token refresh is rejected.
func (s *Store) ForceLogout() {
	s.clear()
}

// UpdateUser replaces the cached profile, typically with the full record
// a profile-edit call returned. The record is stored as given, so pass
// the complete profile; any field left zero ends up zero in the cache.
func (s *Store) UpdateUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	s.persistLocked()
}

// Register creates an account. The caller still logs in afterwards.
func (s *Store) Register(ctx context.Context, name, username, email, password string) (models.User, error) {
	return s.api.Register(ctx, name, username, email, password)
}

func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Store) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// User returns a copy of the cached profile, or nil before FetchUser.
func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

type accessClaims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenClaims peeks at the access token payload without verifying the
// signature; the client holds no signing key, the server re-validates on
// every request anyway.
func (s *Store) TokenClaims() (userID int, expiresAt time.Time, err error) {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	if token == "" {
		return 0, time.Time{}, fmt.Errorf("not logged in")
	}

	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return claims.UserID, expiresAt, nil
}

// UserID prefers the cached profile and falls back to the token claims.
func (s *Store) UserID() int {
	s.mu.Lock()
	if s.user != nil {
		id := s.user.ID
		s.mu.Unlock()
		return id
	}
	s.mu.Unlock()
	id, _, err := s.TokenClaims()
	if err != nil {
		return 0
	}
	return id
}

// OnTokenChange registers a callback invoked with the new access token
// after every token mutation; an empty token means logged out. The
// realtime layer uses this to recycle its notification channel.
func (s *Store) OnTokenChange(fn func(accessToken string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Store) notifyWatchers(access string) {
	s.mu.Lock()
	watchers := make([]func(string), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(access)
	}
}

func (s *Store) clear() {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	s.authenticated = false
	s.persistLocked()
	s.mu.Unlock()
	s.notifyWatchers("")
}

func (s *Store) persistLocked() {
	userJSON := ""
	if s.user != nil {
		data, err := json.Marshal(s.user)
		if err != nil {
			log.Printf("[session] failed to save session: %v", err)
			return
		}
		userJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO session (name, access_token, refresh_token, user_json, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_json = excluded.user_json,
			updated_at = CURRENT_TIMESTAMP
	`, storageKey, s.accessToken, s.refreshToken, userJSON)
	if err != nil {
		log.Printf("[session] failed to save session: %v", err)
	}
}

func (s *Store) load() error {
	var access, refresh, userJSON string
	err := s.db.QueryRow(
		"SELECT access_token, refresh_token, user_json FROM session WHERE name = ?",
		storageKey,
	).Scan(&access, &refresh, &userJSON)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
	s.authenticated = access != ""
	if userJSON != "" {
		var user models.User
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			return err
		}
		s.user = &user
	}
	return nil
}
