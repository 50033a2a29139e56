// Package apitest runs an in-process stand-in for the chat backend:
// the REST routes and both websocket endpoints, with knobs for token
// expiry, refresh failure and server-initiated socket traffic. Package
// tests across the client use it instead of a live server.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/4xmen/peyk/internal/models"
)

// InboundEvent is a client->server socket payload captured for
// assertions.
type InboundEvent struct {
	GroupID int
	Payload map[string]interface{}
}

type Server struct {
	HTTP *httptest.Server

	upgrader websocket.Upgrader

	mu             sync.Mutex
	users          map[int]models.User
	passwords      map[string]string // username -> password
	usersByName    map[string]int
	groups         map[int]*models.Group
	groupOrder     []int
	messages       map[int][]models.Message
	blocked        []models.BlockedUser
	nextMessageID  int
	nextGroupID    int
	tokenSeq       int
	accessTokens   map[string]int // token -> user id
	refreshTokens  map[string]int
	failRefresh    bool
	refreshCalls   int
	blacklistCalls int
	markReadCalls  map[int]int
	messagesCalls  map[int]int
	messageDelay   map[int]time.Duration // per-group history fetch delay
	broadcastPost  bool
	aiSettings     map[string]interface{}

	chatConns  map[int][]*websocket.Conn
	notifConns []*websocket.Conn

	inbound chan InboundEvent
}

func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		users:         make(map[int]models.User),
		passwords:     make(map[string]string),
		usersByName:   make(map[string]int),
		groups:        make(map[int]*models.Group),
		messages:      make(map[int][]models.Message),
		accessTokens:  make(map[string]int),
		refreshTokens: make(map[string]int),
		markReadCalls: make(map[int]int),
		messagesCalls: make(map[int]int),
		messageDelay:  make(map[int]time.Duration),
		chatConns:     make(map[int][]*websocket.Conn),
		nextMessageID: 1000,
		nextGroupID:   100,
		inbound:       make(chan InboundEvent, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		aiSettings: map[string]interface{}{
			"offline_mode_enabled": false,
			"offline_ai_message":   "I'm currently offline. I'll get back to you soon!",
			"ai_temperature":       0.7,
			"ai_max_tokens":        1000,
			"model_name":           "gemini-1.5-flash",
			"is_active":            true,
		},
	}

	router := gin.New()
	s.routes(router)
	s.HTTP = httptest.NewServer(router)
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.notifConns...)
	for _, list := range s.chatConns {
		conns = append(conns, list...)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
	s.HTTP.Close()
}

// APIBaseURL is what the REST client takes as its base.
func (s *Server) APIBaseURL() string { return s.HTTP.URL + "/api" }

// WSBaseURL is what the realtime manager takes as its base.
func (s *Server) WSBaseURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http")
}

// AddUser registers a login fixture.
func (s *Server) AddUser(user models.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	s.passwords[user.Username] = password
	s.usersByName[user.Username] = user.ID
}

// SeedGroup installs a conversation and its history.
func (s *Server) SeedGroup(group models.Group, history []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := group
	s.groups[g.ID] = &g
	s.groupOrder = append(s.groupOrder, g.ID)
	s.messages[g.ID] = append([]models.Message(nil), history...)
}

// ExpireAccess invalidates every outstanding access token, forcing the
// next authenticated request into the refresh path.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]int)
}

// SetFailRefresh makes the refresh endpoint reject with 401.
func (s *Server) SetFailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// SetBroadcastOnPost echoes every REST-posted message to the group's
// chat sockets as well, reproducing the dual-path delivery race.
func (s *Server) SetBroadcastOnPost(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastPost = on
}

// SetMessageFetchDelay slows the history endpoint for one group,
// used to provoke the stale-fetch race.
func (s *Server) SetMessageFetchDelay(groupID int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageDelay[groupID] = d
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) BlacklistCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklistCalls
}

func (s *Server) MarkReadCalls(groupID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReadCalls[groupID]
}

func (s *Server) MessagesCalls(groupID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesCalls[groupID]
}

// Inbound exposes client->server socket payloads.
func (s *Server) Inbound() <-chan InboundEvent { return s.inbound }

// NextInbound waits for one inbound socket payload.
func (s *Server) NextInbound(timeout time.Duration) (InboundEvent, bool) {
	select {
	case ev := <-s.inbound:
		return ev, true
	case <-time.After(timeout):
		return InboundEvent{}, false
	}
}

func (s *Server) issueTokens(userID int) (access, refresh string) {
	s.tokenSeq++
	access = fmt.Sprintf("access-%d", s.tokenSeq)
	refresh = fmt.Sprintf("refresh-%d", s.tokenSeq)
	s.accessTokens[access] = userID
	s.refreshTokens[refresh] = userID
	return access, refresh
}

func (s *Server) userForRequest(c *gin.Context) (int, bool) {
	token := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.accessTokens[token]
	return userID, ok
}

func (s *Server) authRequired(c *gin.Context) (int, bool) {
	userID, ok := s.userForRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
		c.Abort()
	}
	return userID, ok
}

func groupIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
