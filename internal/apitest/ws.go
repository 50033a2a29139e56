package apitest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func (s *Server) handleNotificationsWS(c *gin.Context) {
	if _, ok := s.userForRequest(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.notifConns = append(s.notifConns, conn)
	s.mu.Unlock()

	go s.readSocket(conn, 0)
}

func (s *Server) handleChatWS(c *gin.Context) {
	if _, ok := s.userForRequest(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Given token not valid for any token type"})
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.chatConns[groupID] = append(s.chatConns[groupID], conn)
	s.mu.Unlock()

	go s.readSocket(conn, groupID)
}

// readSocket drains client frames into the inbound channel until the
// peer goes away. Ping frames from the client are answered by the
// library's default pong handler.
func (s *Server) readSocket(conn *websocket.Conn, groupID int) {
	defer s.forgetConn(conn, groupID)
	for {
		var payload map[string]interface{}
		if err := conn.ReadJSON(&payload); err != nil {
			return
		}
		select {
		case s.inbound <- InboundEvent{GroupID: groupID, Payload: payload}:
		default:
		}
	}
}

func (s *Server) forgetConn(conn *websocket.Conn, groupID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if groupID == 0 {
		s.notifConns = removeConn(s.notifConns, conn)
		return
	}
	s.chatConns[groupID] = removeConn(s.chatConns[groupID], conn)
}

func removeConn(conns []*websocket.Conn, conn *websocket.Conn) []*websocket.Conn {
	kept := conns[:0]
	for _, c := range conns {
		if c != conn {
			kept = append(kept, c)
		}
	}
	return kept
}

// PushNotification broadcasts a payload on every notification socket.
func (s *Server) PushNotification(payload interface{}) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.notifConns...)
	s.mu.Unlock()
	for _, conn := range conns {
		conn.WriteJSON(payload)
	}
}

// PushChat broadcasts a payload on every socket attached to the group.
func (s *Server) PushChat(groupID int, payload interface{}) {
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.chatConns[groupID]...)
	s.mu.Unlock()
	for _, conn := range conns {
		conn.WriteJSON(payload)
	}
}

// ChatConnCount reports live sockets on the group, so tests can wait
// for a client to attach or reattach.
func (s *Server) ChatConnCount(groupID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chatConns[groupID])
}

// NotifConnCount reports live notification sockets.
func (s *Server) NotifConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifConns)
}

// DropChatConnections kills the group's sockets without a close
// handshake. Clients see an abnormal closure.
func (s *Server) DropChatConnections(groupID int) {
	s.mu.Lock()
	conns := s.chatConns[groupID]
	s.chatConns[groupID] = nil
	s.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

// CloseChatNormal shuts the group's sockets with close code 1000, the
// signal that the server ended the conversation on purpose.
func (s *Server) CloseChatNormal(groupID int) {
	s.mu.Lock()
	conns := s.chatConns[groupID]
	s.chatConns[groupID] = nil
	s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	// Let the close frame reach the peer before tearing the TCP side.
	time.Sleep(100 * time.Millisecond)
	for _, conn := range conns {
		conn.Close()
	}
}
