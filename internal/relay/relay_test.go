package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/store"
)

func testRelay(t *testing.T) (*Relay, store.MessageStore, *httptest.Server) {
	t.Helper()
	ms := store.NewMemoryMessageStore()
	r := New(ms, logging.New(nil, "silent", "json"), nil)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return r, ms, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	env, err := NewEnvelope(EventJoin, JoinParams{Room: room})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// waitForRoom blocks until the hub has registered a member in the room; the
// join event is processed asynchronously by the server's read loop.
func waitForRoom(t *testing.T, r *Relay, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.Hub().RoomSize(room) < n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached %d members", room, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendMessage_AckAndPersist(t *testing.T) {
	_, ms, ts := testRelay(t)
	conn := dial(t, ts)
	joinRoom(t, conn, "s1")

	env, err := NewEnvelope(EventSendMessage, SendMessageParams{
		Name: "Ana", Email: "ana@x.com", Message: "Hi", SessionID: "s1",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	ack := readEvent(t, conn)
	assert.Equal(t, EventMessageSent, ack.Event)

	var sent MessageSent
	require.NoError(t, json.Unmarshal(ack.Data, &sent))
	assert.True(t, sent.Success)
	assert.NotEmpty(t, sent.Message.ID)
	assert.Equal(t, "s1", sent.Message.SessionID)
	assert.Equal(t, "Hi", sent.Message.Body)
	assert.False(t, sent.Message.IsAdmin)

	msgs, err := ms.ListBySession("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.Message.ID, msgs[0].ID)
}

func TestSendMessage_FansOutToAdminRoom(t *testing.T) {
	r, _, ts := testRelay(t)

	admin := dial(t, ts)
	joinRoom(t, admin, domain.AdminRoom)
	waitForRoom(t, r, domain.AdminRoom, 1)

	visitor := dial(t, ts)
	joinRoom(t, visitor, "s1")

	env, _ := NewEnvelope(EventSendMessage, SendMessageParams{
		Name: "Ana", Email: "ana@x.com", Message: "Hello", SessionID: "s1",
	})
	require.NoError(t, visitor.WriteJSON(env))

	got := readEvent(t, admin)
	assert.Equal(t, EventNewMessage, got.Event)

	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "Hello", msg.Body)
}

func TestSendMessage_EmptyBodyRejectedSenderOnly(t *testing.T) {
	r, ms, ts := testRelay(t)

	admin := dial(t, ts)
	joinRoom(t, admin, domain.AdminRoom)
	waitForRoom(t, r, domain.AdminRoom, 1)

	visitor := dial(t, ts)
	joinRoom(t, visitor, "s1")

	env, _ := NewEnvelope(EventSendMessage, SendMessageParams{
		Name: "Ana", Email: "ana@x.com", Message: "   ", SessionID: "s1",
	})
	require.NoError(t, visitor.WriteJSON(env))

	got := readEvent(t, visitor)
	assert.Equal(t, EventMessageError, got.Event)

	var merr MessageError
	require.NoError(t, json.Unmarshal(got.Data, &merr))
	assert.False(t, merr.Success)
	assert.NotEmpty(t, merr.Error)

	// Nothing persisted, nothing fanned out.
	msgs, err := ms.ListBySession("s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The connection survives the rejection.
	env2, _ := NewEnvelope(EventSendMessage, SendMessageParams{
		Name: "Ana", Email: "ana@x.com", Message: "real one", SessionID: "s1",
	})
	require.NoError(t, visitor.WriteJSON(env2))
	ack := readEvent(t, visitor)
	assert.Equal(t, EventMessageSent, ack.Event)
}

func TestBroadcastAdminReply_ReachesBothRooms(t *testing.T) {
	r, ms, ts := testRelay(t)

	visitor := dial(t, ts)
	joinRoom(t, visitor, "s1")
	waitForRoom(t, r, "s1", 1)

	admin := dial(t, ts)
	joinRoom(t, admin, domain.AdminRoom)
	waitForRoom(t, r, domain.AdminRoom, 1)

	reply, err := ms.Append(domain.ChatMessage{
		SessionID: "s1", Name: domain.AdminName, Email: "admin@programmedstyle.com",
		Body: "Hello Ana", Read: true, IsAdmin: true,
	})
	require.NoError(t, err)
	r.BroadcastAdminReply(reply)

	got := readEvent(t, visitor)
	assert.Equal(t, EventAdminReply, got.Event)
	var ar AdminReply
	require.NoError(t, json.Unmarshal(got.Data, &ar))
	assert.Equal(t, "Hello Ana", ar.Reply)
	assert.Equal(t, reply.ID, ar.MessageID)

	mirrored := readEvent(t, admin)
	assert.Equal(t, EventNewMessage, mirrored.Event)
	var msg domain.ChatMessage
	require.NoError(t, json.Unmarshal(mirrored.Data, &msg))
	assert.Equal(t, reply.ID, msg.ID)
	assert.True(t, msg.IsAdmin)
}

func TestMultipleAdminConsolesShareRoom(t *testing.T) {
	r, _, ts := testRelay(t)

	a := dial(t, ts)
	joinRoom(t, a, domain.AdminRoom)
	b := dial(t, ts)
	joinRoom(t, b, domain.AdminRoom)
	waitForRoom(t, r, domain.AdminRoom, 2)

	r.BroadcastNewMessage(domain.ChatMessage{ID: "m1", SessionID: "s1", Body: "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		got := readEvent(t, conn)
		assert.Equal(t, EventNewMessage, got.Event)
	}
}

func TestJoin_SwitchingRoomsLeavesOld(t *testing.T) {
	r, _, ts := testRelay(t)

	conn := dial(t, ts)
	joinRoom(t, conn, "s1")
	waitForRoom(t, r, "s1", 1)

	joinRoom(t, conn, "s2")
	waitForRoom(t, r, "s2", 1)
	assert.Zero(t, r.Hub().RoomSize("s1"))
	assert.Equal(t, 1, r.Hub().Count())
}

func TestDisconnect_LeavesRoom(t *testing.T) {
	r, _, ts := testRelay(t)

	conn := dial(t, ts)
	joinRoom(t, conn, "s1")
	waitForRoom(t, r, "s1", 1)

	conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for r.Hub().RoomSize("s1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room member not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastToEmptyRoomIsNotAnError(t *testing.T) {
	r, _, _ := testRelay(t)
	// No subscribers anywhere; fan-out is simply dropped.
	r.BroadcastAdminReply(domain.ChatMessage{ID: "m1", SessionID: "ghost", Body: "anyone?"})
}

func TestOriginCheck(t *testing.T) {
	allowed := checkOrigin([]string{"https://programmedstyle.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	assert.True(t, allowed(req), "no origin header is same-origin")

	req.Header.Set("Origin", "https://programmedstyle.com")
	assert.True(t, allowed(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, allowed(req))

	wildcard := checkOrigin([]string{"*"})
	assert.True(t, wildcard(req))
}

func TestHubJoinBroadcastDirect(t *testing.T) {
	log := logging.New(nil, "silent", "json")
	h := NewHub(log)

	assert.Zero(t, h.Count())
	h.Broadcast("nobody", EventNewMessage, domain.ChatMessage{ID: "x"})
	assert.Zero(t, h.RoomSize("nobody"))
}
