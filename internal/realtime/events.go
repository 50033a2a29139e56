package realtime

import (
	"time"

	"github.com/4xmen/peyk/internal/models"
)

// Inbound event kinds. The backend has shipped both "typing" and
// "typing_indicator" for the same event at different times, so both are
// accepted; the wire contract is owned by the server.
const (
	EventChatMessage         = "chat_message"
	EventTyping              = "typing"
	EventTypingIndicator     = "typing_indicator"
	EventMessageStatusUpdate = "message_status_update"
	EventNewMessage          = "new_message"
	EventUserStatus          = "user_status"
	EventGroupUpdate         = "group_update"
	EventGroupInvite         = "group_invite"
	EventError               = "error"
)

// Envelope is the superset of fields the two channels deliver; Type
// discriminates. "message" doubles as chat text and error text, which is
// the server's choice, not ours.
type Envelope struct {
	Type string `json:"type"`

	// chat_message
	MessageID      int                    `json:"message_id,omitempty"`
	ID             int                    `json:"id,omitempty"`
	Message        string                 `json:"message,omitempty"`
	SenderID       int                    `json:"sender_id,omitempty"`
	Sender         string                 `json:"sender,omitempty"`
	SenderInfo     *models.Member         `json:"sender_info,omitempty"`
	MessageType    string                 `json:"message_type,omitempty"`
	FileAttachment *models.FileAttachment `json:"file_attachment,omitempty"`
	Timestamp      string                 `json:"timestamp,omitempty"`

	// typing / typing_indicator
	User     string `json:"user,omitempty"`
	UserID   int    `json:"user_id,omitempty"`
	IsTyping bool   `json:"is_typing,omitempty"`

	// message_status_update
	Status     string `json:"status,omitempty"`
	BulkUpdate bool   `json:"bulk_update,omitempty"`
	MessageIDs []int  `json:"message_ids,omitempty"`

	// notification channel
	GroupID     int    `json:"group_id,omitempty"`
	GroupName   string `json:"group_name,omitempty"`
	Username    string `json:"username,omitempty"`
	IsOnline    bool   `json:"is_online,omitempty"`
	OnlineUsers []int  `json:"online_users,omitempty"`
}

// toMessage normalizes a chat_message envelope into the store's message
// shape. Socket broadcasts carry message_id where REST bodies carry id.
func (e *Envelope) toMessage(groupID int) models.Message {
	id := e.MessageID
	if id == 0 {
		id = e.ID
	}

	messageType := e.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	status := e.Status
	if status == "" {
		status = models.MessageStatusSent
	}

	createdAt := time.Now()
	if e.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			createdAt = parsed
		}
	}

	return models.Message{
		ID:             id,
		Group:          groupID,
		Sender:         e.SenderID,
		SenderInfo:     e.SenderInfo,
		Content:        e.Message,
		MessageType:    messageType,
		FileAttachment: e.FileAttachment,
		Status:         status,
		CreatedAt:      createdAt,
	}
}

// Outbound client->server payloads.

type outboundChatMessage struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	MessageType     string `json:"message_type"`
	ClientMessageID string `json:"client_message_id"`
	Timestamp       string `json:"timestamp"`
}

type outboundTyping struct {
	Type      string `json:"type"`
	IsTyping  bool   `json:"is_typing"`
	Timestamp string `json:"timestamp"`
}
