// Package realtime maintains the two server-push channels: the
// per-session notifications socket and the per-conversation chat
// socket. It owns no chat state of its own; inbound events are
// translated into chat-store mutations and outbound senders are thin
// wrappers over the live chat channel.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/4xmen/peyk/internal/chat"
	"github.com/4xmen/peyk/internal/models"
	"github.com/4xmen/peyk/internal/notify"
	"github.com/4xmen/peyk/internal/session"
	"github.com/google/uuid"
)

const backgroundTimeout = 10 * time.Second

type Manager struct {
	wsBase         string
	reconnectDelay time.Duration
	typingIdle     time.Duration

	session  *session.Store
	store    *chat.Store
	notifier notify.Notifier

	mu           sync.Mutex
	notifChannel *Channel
	chatChannel  *Channel
	chatGroupID  int
	typing       *TypingNotifier
	pruneStop    chan struct{}
	started      bool
}

func NewManager(wsBase string, reconnectDelay, typingIdle time.Duration, sess *session.Store, store *chat.Store, notifier notify.Notifier) *Manager {
	m := &Manager{
		wsBase:         wsBase,
		reconnectDelay: reconnectDelay,
		typingIdle:     typingIdle,
		session:        sess,
		store:          store,
		notifier:       notifier,
	}
	m.typing = NewTypingNotifier(typingIdle, m.SendTypingStatus)
	return m
}

// Start hooks the manager into the session (token changes recycle the
// notification channel) and the chat store (selection changes recycle
// the chat channel), then brings the notification channel up if a
// session already exists.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.pruneStop = make(chan struct{})
	m.mu.Unlock()

	m.session.OnTokenChange(m.handleTokenChange)
	m.store.OnSelectionChange(m.handleSelectionChange)

	if m.session.IsAuthenticated() {
		m.openNotificationChannel()
	}

	go m.pruneLoop()
}

// Stop tears both channels down deliberately.
func (m *Manager) Stop() {
	m.mu.Lock()
	notif := m.notifChannel
	chatCh := m.chatChannel
	m.notifChannel = nil
	m.chatChannel = nil
	if m.pruneStop != nil {
		close(m.pruneStop)
		m.pruneStop = nil
	}
	m.started = false
	m.mu.Unlock()

	if notif != nil {
		notif.Close()
	}
	if chatCh != nil {
		chatCh.Close()
	}
}

// NotificationState reports the notification channel's lifecycle state.
func (m *Manager) NotificationState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifChannel == nil {
		return StateIdle
	}
	return m.notifChannel.State()
}

// ChatState reports the chat channel's lifecycle state.
func (m *Manager) ChatState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatChannel == nil {
		return StateIdle
	}
	return m.chatChannel.State()
}

// Typing returns the keystroke-driven debouncer for the outbound typing
// indicator.
func (m *Manager) Typing() *TypingNotifier {
	return m.typing
}

// SendTypingStatus emits one typing transition on the chat channel.
func (m *Manager) SendTypingStatus(isTyping bool) error {
	m.mu.Lock()
	ch := m.chatChannel
	m.mu.Unlock()
	if ch == nil {
		return errNotOpen
	}
	return ch.Send(outboundTyping{
		Type:      EventTyping,
		IsTyping:  isTyping,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendChatMessage pushes a message through the socket rather than the
// REST endpoint. The REST path is the primary one; this exists for
// parity with the server's consumer.
func (m *Manager) SendChatMessage(content string) error {
	m.mu.Lock()
	ch := m.chatChannel
	m.mu.Unlock()
	if ch == nil {
		return errNotOpen
	}
	return ch.Send(outboundChatMessage{
		Type:            EventChatMessage,
		Message:         content,
		MessageType:     models.MessageTypeText,
		ClientMessageID: uuid.NewString(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *Manager) handleTokenChange(accessToken string) {
	m.mu.Lock()
	notif := m.notifChannel
	chatCh := m.chatChannel
	m.notifChannel = nil
	m.chatChannel = nil
	m.chatGroupID = 0
	m.mu.Unlock()

	if notif != nil {
		notif.Close()
	}
	if chatCh != nil {
		chatCh.Close()
	}
	if accessToken == "" {
		return
	}
	m.openNotificationChannel()

	// Reattach to the open conversation under the new token.
	if selected := m.store.SelectedGroup(); selected != nil {
		m.openChatChannel(selected.ID)
	}
}

func (m *Manager) handleSelectionChange(selected *models.Group) {
	m.mu.Lock()
	previous := m.chatChannel
	m.chatChannel = nil
	m.chatGroupID = 0
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	if selected == nil {
		return
	}
	m.openChatChannel(selected.ID)
}

func (m *Manager) openNotificationChannel() {
	urlFn := func() string {
		return fmt.Sprintf("%s/ws/notifications/?token=%s", m.wsBase, url.QueryEscape(m.session.AccessToken()))
	}
	ch := NewChannel("notifications", urlFn, m.reconnectDelay, m.handleNotificationEvent, nil)

	m.mu.Lock()
	m.notifChannel = ch
	m.mu.Unlock()
	ch.Open()
}

func (m *Manager) openChatChannel(groupID int) {
	urlFn := func() string {
		return fmt.Sprintf("%s/ws/chat/%d/?token=%s", m.wsBase, groupID, url.QueryEscape(m.session.AccessToken()))
	}
	name := fmt.Sprintf("chat-%d", groupID)
	ch := NewChannel(name, urlFn, m.reconnectDelay, func(data []byte) {
		m.handleChatEvent(groupID, data)
	}, nil)

	m.mu.Lock()
	m.chatChannel = ch
	m.chatGroupID = groupID
	m.mu.Unlock()
	ch.Open()
}

func (m *Manager) handleNotificationEvent(data []byte) {
	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		// Malformed payloads are dropped, never fatal.
		log.Printf("[realtime] bad notification payload: %v", err)
		return
	}

	switch ev.Type {
	case EventNewMessage:
		selected := m.store.SelectedGroup()
		if selected != nil && selected.ID == ev.GroupID {
			// The chat channel already shows this conversation.
			return
		}
		if m.notifier != nil {
			m.notifier.Notify(notificationTitle(ev), ev.Message)
		}
		m.refreshGroups()

	case EventUserStatus:
		if ev.OnlineUsers != nil {
			m.store.SetOnlineUsers(ev.OnlineUsers)
		} else {
			m.store.SetUserOnline(ev.UserID, ev.IsOnline)
		}

	case EventGroupUpdate:
		m.refreshGroups()

	case EventGroupInvite:
		if m.notifier != nil && ev.GroupName != "" {
			m.notifier.Notify("Added to "+ev.GroupName, ev.Message)
		}
		m.refreshGroups()

	default:
		log.Printf("[realtime] unknown notification event %q", ev.Type)
	}
}

func (m *Manager) handleChatEvent(groupID int, data []byte) {
	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("[realtime] bad chat payload: %v", err)
		return
	}

	switch ev.Type {
	case EventChatMessage:
		m.store.AddMessage(ev.toMessage(groupID))

	case EventTyping, EventTypingIndicator:
		if ev.UserID == m.session.UserID() {
			return
		}
		m.store.SetTyping(ev.UserID, ev.User, ev.IsTyping)

	case EventMessageStatusUpdate:
		if ev.BulkUpdate && len(ev.MessageIDs) > 0 {
			for _, id := range ev.MessageIDs {
				m.store.UpdateMessageStatus(id, ev.Status)
			}
		} else if ev.MessageID != 0 {
			m.store.UpdateMessageStatus(ev.MessageID, ev.Status)
		}
		// Unread counters in the sidebar move with read receipts.
		m.refreshGroups()

	case EventError:
		log.Printf("[realtime] server error on chat-%d: %s", groupID, ev.Message)

	case "":
		// Some server revisions broadcast the bare message object with
		// no discriminator; a message id marks it as one.
		if ev.ID != 0 || ev.MessageID != 0 {
			m.store.AddMessage(ev.toMessage(groupID))
			return
		}
		log.Printf("[realtime] unrecognized chat payload on chat-%d", groupID)

	default:
		log.Printf("[realtime] unknown chat event %q", ev.Type)
	}
}

func (m *Manager) refreshGroups() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	if err := m.store.FetchGroups(ctx); err != nil {
		log.Printf("[realtime] background group refresh failed: %v", err)
	}
}

// pruneLoop expires typists whose stop event got lost.
func (m *Manager) pruneLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	m.mu.Lock()
	stop := m.pruneStop
	m.mu.Unlock()
	if stop == nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			m.store.PruneTyping()
		case <-stop:
			return
		}
	}
}

func notificationTitle(ev Envelope) string {
	if ev.GroupName != "" && ev.Sender != "" {
		return ev.Sender + " in " + ev.GroupName
	}
	if ev.Sender != "" {
		return ev.Sender
	}
	return "New message"
}
