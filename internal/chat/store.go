// Package chat holds the client-side conversation state: the group
// list, the selected conversation and its loaded messages, plus the
// blocked/online/typing sets. All mutation goes through the store's
// methods; the REST client does the network legwork and the realtime
// layer feeds socket events back in here.
package chat

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/4xmen/peyk/internal/models"
	"github.com/4xmen/peyk/internal/rest"
)

// defaultTypingTTL is the client-side fallback for typists whose
// "stopped typing" event never arrives.
const defaultTypingTTL = 6 * time.Second

type typist struct {
	name string
	seen time.Time
}

type Store struct {
	api *rest.Client

	mu        sync.Mutex
	groups    []models.Group
	selected  *models.Group
	messages  []models.Message
	loading   bool
	blocked   []models.BlockedUser
	online    map[int]bool
	typing    map[int]typist
	typingTTL time.Duration

	// epoch increments on every selection change so a slow message
	// fetch for a previous selection can be recognized and discarded.
	epoch int

	selectionWatchers []func(selected *models.Group)
}

func NewStore(api *rest.Client) *Store {
	return &Store{
		api:       api,
		online:    make(map[int]bool),
		typing:    make(map[int]typist),
		typingTTL: defaultTypingTTL,
	}
}

// OnSelectionChange registers a callback fired after the selected
// conversation changes (nil means no selection). The realtime manager
// uses this to recycle the per-conversation chat channel.
func (s *Store) OnSelectionChange(fn func(selected *models.Group)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectionWatchers = append(s.selectionWatchers, fn)
}

func (s *Store) notifySelection(selected *models.Group) {
	s.mu.Lock()
	watchers := make([]func(*models.Group), len(s.selectionWatchers))
	copy(watchers, s.selectionWatchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(selected)
	}
}

// FetchGroups replaces the conversation list wholesale with the server
// listing. No merging; the server is authoritative.
func (s *Store) FetchGroups(ctx context.Context) error {
	groups, err := s.api.Groups(ctx)
	if err != nil {
		log.Printf("[chat] failed to fetch groups: %v", err)
		return err
	}

	s.mu.Lock()
	s.groups = groups
	s.mu.Unlock()
	return nil
}

// SelectGroup makes group the open conversation: clears the message
// pane, loads history, bulk-marks it read and refreshes the group list
// so the sidebar unread badge catches up. The loading flag is cleared on
// every path out. A fetch that resolves after the user has already
// switched away is discarded.
func (s *Store) SelectGroup(ctx context.Context, group models.Group) error {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	g := group
	s.selected = &g
	s.messages = nil
	s.typing = make(map[int]typist)
	s.loading = true
	s.mu.Unlock()
	s.notifySelection(&g)

	defer func() {
		s.mu.Lock()
		if s.epoch == epoch {
			s.loading = false
		}
		s.mu.Unlock()
	}()

	messages, err := s.api.Messages(ctx, group.ID)
	if err != nil {
		log.Printf("[chat] failed to fetch messages for group %d: %v", group.ID, err)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// Selection moved on while the fetch was in flight.
		s.mu.Unlock()
		return nil
	}
	s.messages = messages
	s.mu.Unlock()

	// Read-mark failure is non-fatal: messages are on screen either
	// way, only the unread badge stays stale until the next refresh.
	if _, err := s.api.MarkMessagesRead(ctx, group.ID); err != nil {
		log.Printf("[chat] failed to mark group %d read: %v", group.ID, err)
		return nil
	}
	if err := s.FetchGroups(ctx); err != nil {
		log.Printf("[chat] group refresh after read-mark failed: %v", err)
	}
	return nil
}

// ClearSelection closes the open conversation without selecting another.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.epoch++
	s.selected = nil
	s.messages = nil
	s.typing = make(map[int]typist)
	s.loading = false
	s.mu.Unlock()
	s.notifySelection(nil)
}

// AddMessage appends a message to the open conversation.
//
// Invariant: the append is idempotent on message id. Both the HTTP send
// echo and the socket broadcast can deliver the same message, in either
// order; whichever arrives second is dropped here.
func (s *Store) AddMessage(message models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages {
		if existing.ID == message.ID {
			return
		}
	}
	s.messages = append(s.messages, message)
}

// UpdateMessageStatus patches the status of one loaded message. Unknown
// ids are ignored; the message may have scrolled out of the loaded
// window or belong to another conversation.
func (s *Store) UpdateMessageStatus(messageID int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].Status = status
			return
		}
	}
}

// SendMessage posts a text message to the open conversation and appends
// the echoed record locally (idempotently, the broadcast may have won).
func (s *Store) SendMessage(ctx context.Context, content string) (models.Message, error) {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()
	if selected == nil {
		return models.Message{}, ErrNoSelection
	}

	message, err := s.api.SendMessage(ctx, selected.ID, content)
	if err != nil {
		return models.Message{}, err
	}
	s.AddMessage(message)
	return message, nil
}

// SendFileMessage posts a message with an attachment to the open
// conversation.
func (s *Store) SendFileMessage(ctx context.Context, content, fileName string, file io.Reader) (models.Message, error) {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()
	if selected == nil {
		return models.Message{}, ErrNoSelection
	}

	message, err := s.api.SendFileMessage(ctx, selected.ID, content, fileName, file)
	if err != nil {
		return models.Message{}, err
	}
	s.AddMessage(message)
	return message, nil
}

// DeleteMessage removes a message server-side, then locally.
func (s *Store) DeleteMessage(ctx context.Context, messageID int) error {
	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// LeaveGroup exits a group and drops it from the local list.
func (s *Store) LeaveGroup(ctx context.Context, groupID int) error {
	if err := s.api.LeaveGroup(ctx, groupID); err != nil {
		return err
	}
	s.removeGroupLocally(groupID)
	return nil
}

// DeleteChat deletes a conversation and drops it from the local list.
func (s *Store) DeleteChat(ctx context.Context, groupID int) error {
	if err := s.api.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.removeGroupLocally(groupID)
	return nil
}

// removeGroupLocally filters the group out; if it was the open
// conversation, the selection and message pane are reset too.
func (s *Store) removeGroupLocally(groupID int) {
	s.mu.Lock()
	kept := s.groups[:0]
	for _, g := range s.groups {
		if g.ID != groupID {
			kept = append(kept, g)
		}
	}
	s.groups = kept

	wasSelected := s.selected != nil && s.selected.ID == groupID
	if wasSelected {
		s.epoch++
		s.selected = nil
		s.messages = nil
		s.typing = make(map[int]typist)
		s.loading = false
	}
	s.mu.Unlock()

	if wasSelected {
		s.notifySelection(nil)
	}
}

// CreatePrivateChat creates (or resurfaces) the two-party chat with the
// given user, moves it to the head of the list and opens it.
func (s *Store) CreatePrivateChat(ctx context.Context, userID int) (models.Group, error) {
	group, err := s.api.CreatePrivateChat(ctx, userID)
	if err != nil {
		return models.Group{}, err
	}

	s.mu.Lock()
	kept := make([]models.Group, 0, len(s.groups)+1)
	kept = append(kept, group)
	for _, g := range s.groups {
		if g.ID != group.ID {
			kept = append(kept, g)
		}
	}
	s.groups = kept
	s.mu.Unlock()

	if err := s.SelectGroup(ctx, group); err != nil {
		log.Printf("[chat] failed to open new private chat %d: %v", group.ID, err)
	}
	return group, nil
}

// CreateGroupChat creates a multi-party group, inserts it at the head of
// the list and opens it.
func (s *Store) CreateGroupChat(ctx context.Context, name, description string, memberIDs []int, pictureName string, picture io.Reader) (models.Group, error) {
	if name == "" {
		return models.Group{}, ErrGroupNameRequired
	}

	group, err := s.api.CreateGroupChat(ctx, name, description, memberIDs, pictureName, picture)
	if err != nil {
		return models.Group{}, err
	}

	s.mu.Lock()
	s.groups = append([]models.Group{group}, s.groups...)
	s.mu.Unlock()

	if err := s.SelectGroup(ctx, group); err != nil {
		log.Printf("[chat] failed to open new group %d: %v", group.ID, err)
	}
	return group, nil
}

// BlockUser blocks a user, then re-fetches the blocked list rather than
// patching it locally.
func (s *Store) BlockUser(ctx context.Context, userID int) error {
	if err := s.api.BlockUser(ctx, userID); err != nil {
		return err
	}
	return s.FetchBlockedUsers(ctx)
}

// UnblockUser removes a block, then re-fetches the blocked list.
func (s *Store) UnblockUser(ctx context.Context, userID int) error {
	if err := s.api.UnblockUser(ctx, userID); err != nil {
		return err
	}
	return s.FetchBlockedUsers(ctx)
}

// FetchBlockedUsers refreshes the blocked-user list wholesale.
func (s *Store) FetchBlockedUsers(ctx context.Context) error {
	blocked, err := s.api.BlockedUsers(ctx)
	if err != nil {
		log.Printf("[chat] failed to fetch blocked users: %v", err)
		return err
	}

	s.mu.Lock()
	s.blocked = blocked
	s.mu.Unlock()
	return nil
}

// SetUserOnline applies a single presence update.
func (s *Store) SetUserOnline(userID int, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.online[userID] = true
	} else {
		delete(s.online, userID)
	}
}

// SetOnlineUsers replaces the presence set wholesale.
func (s *Store) SetOnlineUsers(userIDs []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = true
	}
}

// SetTyping records that a user started or stopped typing in the open
// conversation.
func (s *Store) SetTyping(userID int, name string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTyping {
		s.typing[userID] = typist{name: name, seen: time.Now()}
	} else {
		delete(s.typing, userID)
	}
}

// PruneTyping drops typists whose stop event never arrived.
func (s *Store) PruneTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.typingTTL)
	for id, t := range s.typing {
		if t.seen.Before(cutoff) {
			delete(s.typing, id)
		}
	}
}

// TypingNames lists who is currently typing in the open conversation.
func (s *Store) TypingNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.typing))
	for _, t := range s.typing {
		names = append(names, t.name)
	}
	return names
}

// ClearAll wipes the whole store, used on logout.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.epoch++
	s.groups = nil
	s.selected = nil
	s.messages = nil
	s.blocked = nil
	s.online = make(map[int]bool)
	s.typing = make(map[int]typist)
	s.loading = false
	s.mu.Unlock()
	s.notifySelection(nil)
}

func (s *Store) Groups() []models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// SelectedGroup returns a copy of the open conversation, or nil.
func (s *Store) SelectedGroup() *models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	g := *s.selected
	return &g
}

func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) BlockedUsers() []models.BlockedUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BlockedUser, len(s.blocked))
	copy(out, s.blocked)
	return out
}

func (s *Store) IsUserOnline(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}
