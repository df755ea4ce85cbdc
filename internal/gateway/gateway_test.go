package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programmedstyle/livechat/internal/config"
	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/relay"
	"github.com/programmedstyle/livechat/internal/store"
)

const testSecret = "test-secret-please-rotate"

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	store store.MessageStore
	relay *relay.Relay
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(nil, "silent", "json")
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = testSecret

	ms := store.NewMemoryMessageStore()
	rl := relay.New(ms, log, nil)
	srv := New(cfg, ms, rl, log)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	token, err := srv.auth.MintToken("tests", time.Hour)
	require.NoError(t, err)

	return &fixture{srv: srv, ts: ts, store: ms, relay: rl, token: token}
}

func (f *fixture) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedVisitor(t *testing.T, ms store.MessageStore, session, body string) domain.ChatMessage {
	t.Helper()
	msg, err := ms.Append(domain.ChatMessage{
		SessionID: session, Name: "Ana", Email: "ana@x.com", Body: body,
	})
	require.NoError(t, err)
	return msg
}

func TestHealth_Public(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", out["status"])
}

func TestSessionTranscript_PublicAndOrdered(t *testing.T) {
	f := newFixture(t)
	seedVisitor(t, f.store, "s1", "first")
	seedVisitor(t, f.store, "s1", "second")
	seedVisitor(t, f.store, "other", "noise")

	resp := f.request(t, http.MethodGet, "/api/chat/messages/session/s1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[messagesResponse](t, resp)
	assert.True(t, out.Success)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "first", out.Messages[0].Body)
	assert.Equal(t, "second", out.Messages[1].Body)
}

func TestSessionTranscript_UnknownSessionIsEmpty(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/api/chat/messages/session/ghost", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[messagesResponse](t, resp)
	assert.True(t, out.Success)
	assert.Empty(t, out.Messages)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/chat/messages"},
		{http.MethodPut, "/api/chat/messages/x/read"},
		{http.MethodPost, "/api/chat/messages/x/reply"},
		{http.MethodGet, "/api/chat/stats"},
		{http.MethodDelete, "/api/chat/session/x"},
	}
	for _, p := range paths {
		resp := f.request(t, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", p.method, p.path)
		out := decode[errorResponse](t, resp)
		assert.False(t, out.Success)
	}
}

func TestAuth_RejectsBadSignatureAndWrongRole(t *testing.T) {
	f := newFixture(t)

	other := NewAuthenticator("a-different-secret", logging.New(nil, "silent", "json"))
	forged, err := other.MintToken("intruder", time.Hour)
	require.NoError(t, err)

	resp := f.request(t, http.MethodGet, "/api/chat/stats", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid signature but no admin role.
	userToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "visitor", "role": "user", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := userToken.SignedString([]byte(testSecret))
	require.NoError(t, err)

	resp = f.request(t, http.MethodGet, "/api/chat/stats", signed, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestListMessages_PaginationEnvelope(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		seedVisitor(t, f.store, fmt.Sprintf("s%d", i), fmt.Sprintf("msg %d", i))
	}

	resp := f.request(t, http.MethodGet, "/api/chat/messages?page=2&limit=2", f.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[messagesResponse](t, resp)
	assert.True(t, out.Success)
	assert.Len(t, out.Messages, 2)
	assert.Equal(t, 5, out.Total)
	assert.Equal(t, 3, out.TotalPages)
	assert.Equal(t, 2, out.CurrentPage)
	// Newest first.
	assert.Equal(t, "msg 2", out.Messages[0].Body)
}

func TestListMessages_UnreadOnly(t *testing.T) {
	f := newFixture(t)
	m1 := seedVisitor(t, f.store, "s1", "unread one")
	m2 := seedVisitor(t, f.store, "s1", "will be read")
	_, err := f.store.MarkRead(m2.ID)
	require.NoError(t, err)

	resp := f.request(t, http.MethodGet, "/api/chat/messages?unreadOnly=true", f.token, nil)
	out := decode[messagesResponse](t, resp)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, m1.ID, out.Messages[0].ID)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	msg := seedVisitor(t, f.store, "s1", "hello")

	resp := f.request(t, http.MethodPut, "/api/chat/messages/"+msg.ID+"/read", f.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[messageResponse](t, resp)
	assert.True(t, out.Success)
	assert.True(t, out.Message.Read)

	resp = f.request(t, http.MethodPut, "/api/chat/messages/nope/read", f.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReply_PersistsMarksReadAndFansOut(t *testing.T) {
	f := newFixture(t)
	msg := seedVisitor(t, f.store, "s1", "anyone there?")

	// A widget listening on the session room should receive the reply push.
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/chat"
	sock, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer sock.Close()
	join, err := relay.NewEnvelope(relay.EventJoin, relay.JoinParams{Room: "s1"})
	require.NoError(t, err)
	require.NoError(t, sock.WriteJSON(join))
	deadline := time.Now().Add(5 * time.Second)
	for f.relay.Hub().RoomSize("s1") == 0 {
		require.False(t, time.Now().After(deadline), "widget never joined room")
		time.Sleep(5 * time.Millisecond)
	}

	resp := f.request(t, http.MethodPost, "/api/chat/messages/"+msg.ID+"/reply", f.token,
		map[string]string{"reply": "yes, how can I help?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[messageResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, domain.AdminName, out.Message.Name)
	assert.True(t, out.Message.IsAdmin)
	assert.True(t, out.Message.Read)
	assert.Equal(t, "s1", out.Message.SessionID)

	// The replied-to message is now read and the reply sits after it.
	transcript, err := f.store.ListBySession("s1")
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.True(t, transcript[0].Read)
	assert.Equal(t, "yes, how can I help?", transcript[1].Body)

	sock.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env relay.Envelope
	require.NoError(t, sock.ReadJSON(&env))
	assert.Equal(t, relay.EventAdminReply, env.Event)
	var ar relay.AdminReply
	require.NoError(t, json.Unmarshal(env.Data, &ar))
	assert.Equal(t, "yes, how can I help?", ar.Reply)
	assert.Equal(t, out.Message.ID, ar.MessageID)
}

func TestReply_Validation(t *testing.T) {
	f := newFixture(t)
	msg := seedVisitor(t, f.store, "s1", "hi")

	resp := f.request(t, http.MethodPost, "/api/chat/messages/"+msg.ID+"/reply", f.token,
		map[string]string{"reply": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/api/chat/messages/missing/reply", f.token,
		map[string]string{"reply": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Neither attempt stored anything.
	transcript, err := f.store.ListBySession("s1")
	require.NoError(t, err)
	assert.Len(t, transcript, 1)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	msg := seedVisitor(t, f.store, "s1", "question")
	seedVisitor(t, f.store, "s2", "another question")
	f.request(t, http.MethodPost, "/api/chat/messages/"+msg.ID+"/reply", f.token,
		map[string]string{"reply": "answer"})

	resp := f.request(t, http.MethodGet, "/api/chat/stats", f.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[statsResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Stats.Total)
	assert.Equal(t, 1, out.Stats.Unread)
	assert.Equal(t, 1, out.Stats.Replied)
	assert.Equal(t, 1, out.Stats.Pending)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	seedVisitor(t, f.store, "s1", "one")
	seedVisitor(t, f.store, "s1", "two")
	seedVisitor(t, f.store, "s2", "keep me")

	resp := f.request(t, http.MethodDelete, "/api/chat/session/s1", f.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[deleteResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.DeletedCount)

	remaining, err := f.store.ListBySession("s2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	// Deleting again is a no-op, not an error.
	resp = f.request(t, http.MethodDelete, "/api/chat/session/s1", f.token, nil)
	out = decode[deleteResponse](t, resp)
	assert.Zero(t, out.DeletedCount)
}

func TestNotFound_JSON(t *testing.T) {
	f := newFixture(t)
	resp := f.request(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestResolveBindAddr(t *testing.T) {
	cases := []struct {
		cfg  config.ServerConfig
		want string
	}{
		{config.ServerConfig{Bind: "loopback", Port: 5000}, "127.0.0.1:5000"},
		{config.ServerConfig{Bind: "lan", Port: 5000}, "0.0.0.0:5000"},
		{config.ServerConfig{Bind: "auto", Port: 8080}, "0.0.0.0:8080"},
		{config.ServerConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 5000}, "10.0.0.5:5000"},
		{config.ServerConfig{Bind: "custom", Port: 5000}, "0.0.0.0:5000"},
		{config.ServerConfig{Bind: "", Port: 5000}, "127.0.0.1:5000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolveBindAddr(tc.cfg))
	}
}
