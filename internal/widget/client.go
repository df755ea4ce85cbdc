package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/relay"
)

// HTTPTranscriptSource fetches transcripts from the gateway's public
// per-session endpoint. No auth; the session id is the capability.
type HTTPTranscriptSource struct {
	baseURL string
	http    *http.Client
}

// NewHTTPTranscriptSource creates a source against a gateway base URL.
func NewHTTPTranscriptSource(baseURL string) *HTTPTranscriptSource {
	return &HTTPTranscriptSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPTranscriptSource) Transcript(sessionID string) ([]domain.ChatMessage, error) {
	resp, err := s.http.Get(s.baseURL + "/api/chat/messages/session/" + sessionID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript fetch failed: status %d", resp.StatusCode)
	}

	var envelope struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Messages, nil
}

// WSConn is a relay connection that implements Sender.
type WSConn struct {
	sock *websocket.Conn
}

// SendEvent writes one event frame. The widget serializes its own sends.
func (c *WSConn) SendEvent(event string, data any) error {
	env, err := relay.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return c.sock.WriteJSON(env)
}

// Close closes the underlying socket.
func (c *WSConn) Close() error { return c.sock.Close() }

// Connect dials the relay, joins the widget's session room and pumps events
// into the widget until the context is cancelled or the connection drops.
// The returned WSConn is already installed as the widget's sender.
func Connect(ctx context.Context, w *Widget, wsURL string) (*WSConn, error) {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay: %w", err)
	}

	conn := &WSConn{sock: sock}
	if err := conn.SendEvent(relay.EventJoin, relay.JoinParams{Room: w.SessionID()}); err != nil {
		sock.Close()
		return nil, fmt.Errorf("joining session room: %w", err)
	}
	w.mu.Lock()
	w.sender = conn
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	go func() {
		for {
			var env relay.Envelope
			if err := sock.ReadJSON(&env); err != nil {
				return
			}
			w.HandleEvent(env)
		}
	}()

	return conn, nil
}
