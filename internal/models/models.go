package models

import "time"

type User struct {
	ID                 int        `json:"id"`
	Name               string     `json:"name"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	ProfilePicture     *string    `json:"profile_picture,omitempty"`
	IsOnline           bool       `json:"is_online"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	OfflineModeEnabled bool       `json:"offline_mode_enabled"`
	OfflineAIMessage   string     `json:"offline_ai_message,omitempty"`
}

// Member is the trimmed user record embedded in group listings.
type Member struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Username       string     `json:"username"`
	ProfilePicture *string    `json:"profile_picture,omitempty"`
	IsOnline       bool       `json:"is_online"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
}

const (
	GroupTypePrivate = "private"
	GroupTypeGroup   = "group"
)

type Group struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	GroupType    string    `json:"group_type"` // private, group
	GroupPicture *string   `json:"group_picture,omitempty"`
	CreatedBy    int       `json:"created_by"`
	Members      []Member  `json:"members"`
	MembersCount int       `json:"members_count"`
	UnreadCount  int       `json:"unread_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName resolves what the sidebar shows for a group. A private chat
// has exactly two members and is titled after the other one.
func (g *Group) DisplayName(currentUserID int) string {
	if g.GroupType != GroupTypePrivate {
		return g.Name
	}
	for _, m := range g.Members {
		if m.ID != currentUserID {
			return m.Name
		}
	}
	return g.Name
}

const (
	MessageTypeText       = "text"
	MessageTypeAIResponse = "ai_response"

	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

type Message struct {
	ID             int             `json:"id"`
	Group          int             `json:"group"`
	Sender         int             `json:"sender"`
	SenderInfo     *Member         `json:"sender_info,omitempty"`
	Content        string          `json:"content,omitempty"`
	MessageType    string          `json:"message_type"` // text, ai_response
	FileAttachment *FileAttachment `json:"file_attachment,omitempty"`
	Status         string          `json:"status"` // sent, delivered, read
	ReadBy         []int           `json:"read_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type FileAttachment struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileSize int64  `json:"file_size,omitempty"`
	FileType string `json:"file_content_type,omitempty"`
}

type BlockedUser struct {
	ID          int       `json:"id"`
	BlockedUser Member    `json:"blocked_user"`
	BlockedAt   time.Time `json:"blocked_at"`
	Reason      string    `json:"reason,omitempty"`
}

// AIConfig holds the offline-assistant settings. The API key is write-only
// and only accepted by the server for admin users.
type AIConfig struct {
	ModelName   string  `json:"model_name"`
	APIKey      string  `json:"api_key,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	IsActive    bool    `json:"is_active"`
}
