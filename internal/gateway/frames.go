package gateway

import "encoding/json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Dispatch event names we act on.
const (
	eventReady         = "READY"
	eventMessageCreate = "MESSAGE_CREATE"
	eventMessageUpdate = "MESSAGE_UPDATE"
	eventMessageDelete = "MESSAGE_DELETE"
)

// identifyIntents subscribes to guilds, guild messages, and message
// content.
const identifyIntents = 33281

// frame is the envelope every socket payload travels in.
type frame struct {
	Op       int             `json:"op"`
	Type     string          `json:"t,omitempty"`
	Data     json.RawMessage `json:"d,omitempty"`
	Sequence *int64          `json:"s,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type readyData struct {
	SessionID string `json:"session_id"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Message is the subset of a platform message the correlator needs.
type Message struct {
	ID          string         `json:"id"`
	ChannelID   string         `json:"channel_id"`
	Content     string         `json:"content"`
	Nonce       string         `json:"nonce,omitempty"`
	Author      MessageAuthor  `json:"author"`
	Attachments []Attachment   `json:"attachments"`
	Components  []ComponentRow `json:"components"`
}

type MessageAuthor struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ComponentRow is an action row wrapping interactive components.
type ComponentRow struct {
	Type       int         `json:"type"`
	Components []Component `json:"components"`
}

type Component struct {
	Type     int    `json:"type"`
	CustomID string `json:"custom_id"`
	Label    string `json:"label"`
	Emoji    *Emoji `json:"emoji,omitempty"`
}

type Emoji struct {
	Name string `json:"name"`
}

// MessageDelete is the payload of a MESSAGE_DELETE dispatch.
type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}
