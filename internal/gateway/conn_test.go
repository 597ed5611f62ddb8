package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/davshaw/gengate/internal/config"
	"github.com/davshaw/gengate/internal/store/model"
)

var upgrader = websocket.Upgrader{}

func newWSServer(t *testing.T, handle func(ws *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(ws)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func sendFrame(t *testing.T, ws *websocket.Conn, op int, eventType string, seq *int64, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(frame{Op: op, Type: eventType, Sequence: seq, Data: payload}))
}

type recordingHandler struct {
	creates chan *Message
	deletes chan *MessageDelete
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		creates: make(chan *Message, 16),
		deletes: make(chan *MessageDelete, 16),
	}
}

func (h *recordingHandler) OnMessageCreate(_ context.Context, _ *model.BotAccount, msg *Message) {
	h.creates <- msg
}

func (h *recordingHandler) OnMessageUpdate(_ context.Context, _ *model.BotAccount, msg *Message) {
	h.creates <- msg
}

func (h *recordingHandler) OnMessageDelete(_ context.Context, _ *model.BotAccount, del *MessageDelete) {
	h.deletes <- del
}

func testAccount() model.BotAccount {
	return model.BotAccount{ID: 1, UserToken: "tok", GuildID: "g1", ChannelID: "c1", IsActive: true}
}

func TestConnectionHandshakeAndDispatch(t *testing.T) {
	identified := make(chan identifyData, 1)
	heartbeats := make(chan int64, 4)

	_, wsURL := newWSServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		sendFrame(t, ws, opHello, "", nil, helloData{HeartbeatInterval: 20})

		// First client frame must be identify
		var f frame
		require.NoError(t, ws.ReadJSON(&f))
		require.Equal(t, opIdentify, f.Op)
		var id identifyData
		require.NoError(t, json.Unmarshal(f.Data, &id))
		identified <- id

		seq := int64(1)
		sendFrame(t, ws, opDispatch, eventReady, &seq, map[string]interface{}{
			"session_id": "s1",
			"user":       map[string]string{"id": "bot-user"},
		})
		sendFrame(t, ws, opDispatch, eventMessageCreate, nil, Message{
			ID: "m1", ChannelID: "c1", Content: "hi", Author: MessageAuthor{Bot: true},
		})
		// Message for another channel must be filtered out
		sendFrame(t, ws, opDispatch, eventMessageCreate, nil, Message{
			ID: "m2", ChannelID: "other", Content: "hi", Author: MessageAuthor{Bot: true},
		})

		// Collect heartbeats until the client hangs up
		for {
			var hb frame
			if err := ws.ReadJSON(&hb); err != nil {
				return
			}
			if hb.Op == opHeartbeat {
				var seq int64
				_ = json.Unmarshal(hb.Data, &seq)
				heartbeats <- seq
			}
		}
	})

	handler := newRecordingHandler()
	conn := NewConnection(testAccount(), config.GatewayConfig{SocketURL: wsURL}, handler)
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	select {
	case id := <-identified:
		assert.Equal(t, "tok", id.Token)
		assert.Equal(t, 33281, id.Intents)
	case <-time.After(2 * time.Second):
		t.Fatal("identify never arrived")
	}

	require.Eventually(t, conn.Ready, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "s1", conn.SessionID())

	select {
	case msg := <-handler.creates:
		assert.Equal(t, "m1", msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached handler")
	}
	select {
	case msg := <-handler.creates:
		t.Fatalf("foreign-channel message leaked through: %s", msg.ID)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case seq := <-heartbeats:
		assert.Equal(t, int64(1), seq, "heartbeat carries last sequence")
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never arrived")
	}
}

func TestConnectionReconnectCap(t *testing.T) {
	var upgrades atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgrades.Add(1)
		_ = ws.Close()
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn := NewConnection(testAccount(), config.GatewayConfig{SocketURL: wsURL}, nil)
	conn.BackoffBase = time.Millisecond
	conn.BackoffMax = 4 * time.Millisecond
	conn.MaxReconnects = 3

	require.NoError(t, conn.Connect(context.Background()))

	// Initial dial plus three capped reconnects, then it stays down
	require.Eventually(t, func() bool {
		return upgrades.Load() == 4
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(4), upgrades.Load())

	conn.Close()
}

func TestConnectionHonorsServerReconnectRequest(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(ws *websocket.Conn) {
		n := upgrades.Add(1)
		if n == 1 {
			// Ask the client to reconnect immediately
			sendFrame(t, ws, opReconnect, "", nil, nil)
			return
		}
		sendFrame(t, ws, opHello, "", nil, helloData{HeartbeatInterval: 60000})
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		seq := int64(1)
		sendFrame(t, ws, opDispatch, eventReady, &seq, map[string]interface{}{"session_id": "s2"})
		// Hold the socket open
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := NewConnection(testAccount(), config.GatewayConfig{SocketURL: wsURL}, nil)
	conn.BackoffBase = time.Millisecond
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	require.Eventually(t, conn.Ready, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), upgrades.Load())
}
