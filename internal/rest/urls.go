package rest

import "fmt"

// URL table for the backend API. Mirrors the route layout the server
// publishes; the base path comes from deployment config.

func (c *Client) loginURL() string        { return c.baseURL + "/token/" }
func (c *Client) refreshTokenURL() string { return c.baseURL + "/token/refresh/" }
func (c *Client) logoutURL() string       { return c.baseURL + "/token/blacklist/" }
func (c *Client) registerURL() string     { return c.baseURL + "/users/register/" }

func (c *Client) userInfoURL() string    { return c.baseURL + "/users/info/" }
func (c *Client) userProfileURL() string { return c.baseURL + "/users/profile/" }
func (c *Client) userSearchURL() string  { return c.baseURL + "/users/search/" }
func (c *Client) blockUserURL() string   { return c.baseURL + "/users/block/" }
func (c *Client) unblockUserURL(userID int) string {
	return fmt.Sprintf("%s/users/unblock/%d/", c.baseURL, userID)
}
func (c *Client) blockedUsersURL() string { return c.baseURL + "/users/blocked/" }

func (c *Client) groupsURL() string            { return c.baseURL + "/groups/" }
func (c *Client) createPrivateChatURL() string { return c.baseURL + "/groups/private/create/" }
func (c *Client) groupDetailURL(groupID int) string {
	return fmt.Sprintf("%s/groups/%d/", c.baseURL, groupID)
}
func (c *Client) leaveGroupURL(groupID int) string {
	return fmt.Sprintf("%s/groups/%d/leave/", c.baseURL, groupID)
}
func (c *Client) removeMemberURL(groupID int) string {
	return fmt.Sprintf("%s/groups/%d/remove-member/", c.baseURL, groupID)
}

func (c *Client) messagesURL(groupID int) string {
	return fmt.Sprintf("%s/groups/%d/messages/", c.baseURL, groupID)
}
func (c *Client) deleteMessageURL(messageID int) string {
	return fmt.Sprintf("%s/messages/%d/", c.baseURL, messageID)
}
func (c *Client) messageStatusURL(messageID int) string {
	return fmt.Sprintf("%s/messages/%d/status/", c.baseURL, messageID)
}
func (c *Client) markMessagesReadURL(groupID int) string {
	return fmt.Sprintf("%s/groups/%d/messages/read/", c.baseURL, groupID)
}

func (c *Client) aiConfigURL() string     { return c.baseURL + "/ai/config/" }
func (c *Client) aiConfigTestURL() string { return c.baseURL + "/ai/config/test/" }
