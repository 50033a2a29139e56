package rest

import "context"

// AISettings is the combined offline-assistant view the config endpoint
// exposes: the caller's own offline-mode toggle plus the shared model
// configuration.
type AISettings struct {
	OfflineModeEnabled bool    `json:"offline_mode_enabled"`
	OfflineAIMessage   string  `json:"offline_ai_message"`
	Temperature        float64 `json:"ai_temperature"`
	MaxTokens          int     `json:"ai_max_tokens"`
	ModelName          string  `json:"model_name"`
	IsActive           bool    `json:"is_active"`
}

// AITestResult is the outcome of a configuration dry run.
type AITestResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TestMessage string `json:"test_message"`
	Response    string `json:"response"`
	Config      struct {
		ModelName   string  `json:"model_name"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	} `json:"config"`
}

// AIConfig fetches the current offline-assistant settings.
func (c *Client) AIConfig(ctx context.Context) (AISettings, error) {
	var settings AISettings
	err := c.getJSON(ctx, c.aiConfigURL(), &settings)
	return settings, err
}

// UpdateAIConfig pushes changed assistant settings. Only keys present in
// fields are updated; the API key is accepted from admins only.
func (c *Client) UpdateAIConfig(ctx context.Context, fields map[string]interface{}) (AISettings, error) {
	var settings AISettings
	err := c.postJSON(ctx, c.aiConfigURL(), fields, &settings)
	return settings, err
}

// TestAIConfig runs a dry-run prompt through the configured model.
func (c *Client) TestAIConfig(ctx context.Context, testMessage string) (AITestResult, error) {
	payload := map[string]string{}
	if testMessage != "" {
		payload["message"] = testMessage
	}
	var result AITestResult
	err := c.postJSON(ctx, c.aiConfigTestURL(), payload, &result)
	return result, err
}
