package apitest

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/4xmen/peyk/internal/models"
)

func (s *Server) routes(router *gin.Engine) {
	api := router.Group("/api")

	api.POST("/token/", s.handleToken)
	api.POST("/token/refresh/", s.handleTokenRefresh)
	api.POST("/token/blacklist/", s.handleTokenBlacklist)
	api.POST("/users/register/", s.handleRegister)

	api.GET("/users/info/", s.handleUserInfo)
	api.PATCH("/users/profile/", s.handleUpdateProfile)
	api.GET("/users/search/", s.handleSearch)
	api.POST("/users/block/", s.handleBlock)
	api.DELETE("/users/unblock/:id/", s.handleUnblock)
	api.GET("/users/blocked/", s.handleBlocked)

	api.GET("/groups/", s.handleGroups)
	api.POST("/groups/", s.handleCreateGroup)
	api.POST("/groups/private/create/", s.handleCreatePrivate)
	api.GET("/groups/:id/", s.handleGroupDetail)
	api.PATCH("/groups/:id/", s.handleUpdateGroup)
	api.DELETE("/groups/:id/", s.handleDeleteGroup)
	api.POST("/groups/:id/leave/", s.handleLeaveGroup)
	api.POST("/groups/:id/remove-member/", s.handleRemoveMember)

	api.GET("/groups/:id/messages/", s.handleMessages)
	api.POST("/groups/:id/messages/", s.handlePostMessage)
	api.POST("/groups/:id/messages/read/", s.handleMarkRead)
	api.DELETE("/messages/:id/", s.handleDeleteMessage)
	api.POST("/messages/:id/status/", s.handleMessageStatus)

	api.GET("/ai/config/", s.handleAIConfig)
	api.POST("/ai/config/", s.handleAIConfigUpdate)
	api.POST("/ai/config/test/", s.handleAIConfigTest)

	router.GET("/ws/notifications/", s.handleNotificationsWS)
	router.GET("/ws/chat/:id/", s.handleChatWS)
}

func (s *Server) handleToken(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	userID, known := s.usersByName[req.Username]
	if !known || s.passwords[req.Username] != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}
	access, refresh := s.issueTokens(userID)
	c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
}

func (s *Server) handleTokenRefresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	userID, ok := s.refreshTokens[req.Refresh]
	if !ok || s.failRefresh {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is blacklisted"})
		return
	}
	s.tokenSeq++
	access := fmt.Sprintf("access-%d", s.tokenSeq)
	s.accessTokens[access] = userID
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (s *Server) handleTokenBlacklist(c *gin.Context) {
	s.mu.Lock()
	s.blacklistCalls++
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[req.Username]; exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already exists"})
		return
	}
	id := len(s.users) + 1
	user := models.User{ID: id, Name: req.Name, Username: req.Username, Email: req.Email}
	s.users[id] = user
	s.usersByName[req.Username] = id
	s.passwords[req.Username] = req.Password
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleUserInfo(c *gin.Context) {
	userID, ok := s.authRequired(c)
	if !ok {
		return
	}
	s.mu.Lock()
	user := s.users[userID]
	s.mu.Unlock()
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	userID, ok := s.authRequired(c)
	if !ok {
		return
	}

	s.mu.Lock()
	user := s.users[userID]
	s.mu.Unlock()

	if c.ContentType() == "multipart/form-data" {
		file, err := c.FormFile("profile_picture")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		picture := "/media/profiles/" + file.Filename
		user.ProfilePicture = &picture
	} else {
		var fields map[string]interface{}
		if err := c.ShouldBindJSON(&fields); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if name, ok := fields["name"].(string); ok {
			user.Name = name
		}
		if email, ok := fields["email"].(string); ok {
			user.Email = email
		}
	}

	s.mu.Lock()
	s.users[userID] = user
	s.mu.Unlock()
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleSearch(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	query := c.Query("q")

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []models.Member{}
	for _, user := range s.users {
		if query == "" || strings.Contains(user.Username, query) || strings.Contains(user.Name, query) {
			matches = append(matches, models.Member{
				ID: user.ID, Name: user.Name, Username: user.Username, IsOnline: user.IsOnline,
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"users": matches})
}

func (s *Server) handleBlock(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, known := s.users[req.UserID]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	s.blocked = append(s.blocked, models.BlockedUser{
		ID:          len(s.blocked) + 1,
		BlockedUser: models.Member{ID: user.ID, Name: user.Name, Username: user.Username},
		BlockedAt:   time.Now(),
	})
	c.JSON(http.StatusCreated, gin.H{"status": "blocked"})
}

func (s *Server) handleUnblock(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.blocked[:0]
	found := false
	for _, b := range s.blocked {
		if b.BlockedUser.ID == id {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	s.blocked = kept
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not blocked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unblocked"})
}

func (s *Server) handleBlocked(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	s.mu.Lock()
	blocked := append([]models.BlockedUser{}, s.blocked...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, blocked)
}

func (s *Server) handleGroups(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	s.mu.Lock()
	groups := make([]models.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		if g, ok := s.groups[id]; ok {
			groups = append(groups, *g)
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"count": len(groups), "results": groups})
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	userID, ok := s.authRequired(c)
	if !ok {
		return
	}
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	s.mu.Lock()
	s.nextGroupID++
	group := models.Group{
		ID:        s.nextGroupID,
		Name:      name,
		GroupType: models.GroupTypeGroup,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
	s.groups[group.ID] = &group
	s.groupOrder = append([]int{group.ID}, s.groupOrder...)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, group)
}

func (s *Server) handleCreatePrivate(c *gin.Context) {
	userID, ok := s.authRequired(c)
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	other, known := s.users[req.UserID]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Resurface an existing private chat between the pair.
	for _, g := range s.groups {
		if g.GroupType != models.GroupTypePrivate {
			continue
		}
		ids := map[int]bool{}
		for _, m := range g.Members {
			ids[m.ID] = true
		}
		if ids[userID] && ids[other.ID] {
			c.JSON(http.StatusOK, *g)
			return
		}
	}

	me := s.users[userID]
	s.nextGroupID++
	group := models.Group{
		ID:        s.nextGroupID,
		GroupType: models.GroupTypePrivate,
		CreatedBy: userID,
		Members: []models.Member{
			{ID: me.ID, Name: me.Name, Username: me.Username},
			{ID: other.ID, Name: other.Name, Username: other.Username},
		},
		CreatedAt: time.Now(),
	}
	s.groups[group.ID] = &group
	s.groupOrder = append([]int{group.ID}, s.groupOrder...)
	c.JSON(http.StatusCreated, group)
}

func (s *Server) handleGroupDetail(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	s.mu.Lock()
	group, known := s.groups[id]
	s.mu.Unlock()
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	c.JSON(http.StatusOK, *group)
}

func (s *Server) handleUpdateGroup(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, known := s.groups[id]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if name, ok := fields["name"].(string); ok {
		group.Name = name
	}
	if desc, ok := fields["description"].(string); ok {
		group.Description = desc
	}
	c.JSON(http.StatusOK, *group)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	s.removeGroup(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLeaveGroup(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	s.removeGroup(id)
	c.JSON(http.StatusOK, gin.H{"status": "Left group"})
}

func (s *Server) removeGroup(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	kept := s.groupOrder[:0]
	for _, gid := range s.groupOrder {
		if gid != id {
			kept = append(kept, gid)
		}
	}
	s.groupOrder = kept
	delete(s.messages, id)
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, known := s.groups[id]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	kept := group.Members[:0]
	for _, m := range group.Members {
		if m.ID != req.UserID {
			kept = append(kept, m)
		}
	}
	group.Members = kept
	c.JSON(http.StatusOK, gin.H{"status": "Member removed"})
}

func (s *Server) handleMessages(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}

	s.mu.Lock()
	s.messagesCalls[id]++
	delay := s.messageDelay[id]
	history := append([]models.Message{}, s.messages[id]...)
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(history), "results": history})
}

func (s *Server) handlePostMessage(c *gin.Context) {
	userID, ok := s.authRequired(c)
	if !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}

	content := ""
	if c.ContentType() == "application/json" {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		content = req.Content
	} else {
		content = c.PostForm("content")
	}

	s.mu.Lock()
	s.nextMessageID++
	message := models.Message{
		ID:          s.nextMessageID,
		Group:       id,
		Sender:      userID,
		Content:     content,
		MessageType: models.MessageTypeText,
		Status:      models.MessageStatusSent,
		CreatedAt:   time.Now(),
	}
	s.messages[id] = append(s.messages[id], message)
	broadcast := s.broadcastPost
	s.mu.Unlock()

	if broadcast {
		s.PushChat(id, map[string]interface{}{
			"type":       "chat_message",
			"message_id": message.ID,
			"message":    message.Content,
			"sender_id":  message.Sender,
			"timestamp":  message.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusCreated, message)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadCalls[id]++
	count := 0
	history := s.messages[id]
	for i := range history {
		if history[i].Status != models.MessageStatusRead {
			history[i].Status = models.MessageStatusRead
			count++
		}
	}
	if group, known := s.groups[id]; known {
		group.UnreadCount = 0
	}
	c.JSON(http.StatusOK, gin.H{"status": "Messages marked as read", "count": count})
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for groupID, history := range s.messages {
		kept := history[:0]
		found := false
		for _, m := range history {
			if m.ID == id {
				found = true
				continue
			}
			kept = append(kept, m)
		}
		if found {
			s.messages[groupID] = kept
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
}

func (s *Server) handleMessageStatus(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	id, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, history := range s.messages {
		for i := range history {
			if history[i].ID == id {
				history[i].Status = req.Status
				c.JSON(http.StatusOK, gin.H{"status": "updated"})
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
}

func (s *Server) handleAIConfig(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	s.mu.Lock()
	settings := copyMap(s.aiSettings)
	s.mu.Unlock()
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleAIConfigUpdate(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s.mu.Lock()
	for key, value := range fields {
		if key == "api_key" {
			continue
		}
		s.aiSettings[key] = value
	}
	settings := copyMap(s.aiSettings)
	s.mu.Unlock()
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleAIConfigTest(c *gin.Context) {
	if _, ok := s.authRequired(c); !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	c.ShouldBindJSON(&req)
	if req.Message == "" {
		req.Message = "Hello, this is a test message"
	}

	s.mu.Lock()
	model := s.aiSettings["model_name"]
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"message":      "AI configuration test completed successfully",
		"test_message": req.Message,
		"response":     "Test response from the assistant",
		"config":       gin.H{"model_name": model, "max_tokens": 1000, "temperature": 0.7},
	})
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
