package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/httpclient"
	"github.com/davshaw/gengate/internal/store/model"
)

// Interaction request types.
const (
	interactionApplicationCommand = 2
	interactionMessageComponent   = 3
	componentTypeButton           = 2
)

// Commander submits slash commands and component clicks over the
// platform REST API using an account's user token.
type Commander struct {
	cfg    config.GatewayConfig
	client *httpclient.Client
}

func NewCommander(cfg config.GatewayConfig, client *httpclient.Client) *Commander {
	return &Commander{cfg: cfg, client: client}
}

type commandOption struct {
	Type  int    `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type commandData struct {
	Version     string          `json:"version"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        int             `json:"type"`
	Options     []commandOption `json:"options"`
	Attachments []interface{}   `json:"attachments"`
}

type componentData struct {
	ComponentType int    `json:"component_type"`
	CustomID      string `json:"custom_id"`
}

type interactionRequest struct {
	Type          int         `json:"type"`
	ApplicationID string      `json:"application_id"`
	GuildID       string      `json:"guild_id"`
	ChannelID     string      `json:"channel_id"`
	SessionID     string      `json:"session_id"`
	MessageID     string      `json:"message_id,omitempty"`
	Data          interface{} `json:"data"`
	Nonce         string      `json:"nonce,omitempty"`
}

// SubmitImagine fires the imagine command with the task id as nonce so
// the correlator can bind the resulting message back to the task. The
// session id comes from the connection's READY dispatch.
func (c *Commander) SubmitImagine(ctx context.Context, account *model.BotAccount, sessionID, taskID, prompt string) error {
	req := interactionRequest{
		Type:          interactionApplicationCommand,
		ApplicationID: c.cfg.ApplicationID,
		GuildID:       account.GuildID,
		ChannelID:     account.ChannelID,
		SessionID:     orNewSession(sessionID),
		Nonce:         taskID,
		Data: commandData{
			Version: c.cfg.CommandVersion,
			ID:      c.cfg.CommandID,
			Name:    "imagine",
			Type:    1,
			Options: []commandOption{
				{Type: 3, Name: "prompt", Value: prompt},
			},
			Attachments: []interface{}{},
		},
	}
	return c.post(ctx, account, req)
}

// SubmitAction clicks a button (upscale, variation, reroll) on a
// previously generated message.
func (c *Commander) SubmitAction(ctx context.Context, account *model.BotAccount, sessionID, taskID, messageID, customID string) error {
	req := interactionRequest{
		Type:          interactionMessageComponent,
		ApplicationID: c.cfg.ApplicationID,
		GuildID:       account.GuildID,
		ChannelID:     account.ChannelID,
		SessionID:     orNewSession(sessionID),
		MessageID:     messageID,
		Nonce:         taskID,
		Data: componentData{
			ComponentType: componentTypeButton,
			CustomID:      customID,
		},
	}
	return c.post(ctx, account, req)
}

// orNewSession covers the window before READY has been dispatched.
func orNewSession(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.NewString()
}

func (c *Commander) post(ctx context.Context, account *model.BotAccount, req interactionRequest) error {
	url := fmt.Sprintf("%s/interactions", c.cfg.APIBaseURL)
	headers := map[string]string{"Authorization": account.UserToken}
	return c.client.SendRequest(ctx, http.MethodPost, url, headers, req, nil)
}

// FetchMessagesAfter lists up to limit channel messages newer than the
// given message id. Used to recover tasks whose progress message was
// deleted before completion.
func (c *Commander) FetchMessagesAfter(ctx context.Context, account *model.BotAccount, messageID string, limit int) ([]Message, error) {
	url := fmt.Sprintf("%s/channels/%s/messages?after=%s&limit=%d",
		c.cfg.APIBaseURL, account.ChannelID, messageID, limit)
	headers := map[string]string{"Authorization": account.UserToken}

	var messages []Message
	if err := c.client.SendRequest(ctx, http.MethodGet, url, headers, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
