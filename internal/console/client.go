package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/relay"
	"github.com/programmedstyle/livechat/internal/store"
)

// Client implements Ops against a running gateway using admin bearer auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logging.Logger
}

// NewClient creates an admin API client. baseURL is the gateway root, e.g.
// "http://127.0.0.1:5000".
func NewClient(baseURL, token string, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Component("apiclient"),
	}
}

// apiError is a non-2xx response decoded from the server's error envelope.
type apiError struct {
	Status int
	Reason string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Reason)
}

func (c *Client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&envelope)
		if envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Reason: envelope.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ListMessages(f store.ListFilter) (store.ListPage, error) {
	path := "/api/chat/messages?unreadOnly=" + strconv.FormatBool(f.UnreadOnly)
	if f.Page > 0 {
		path += "&page=" + strconv.Itoa(f.Page)
	}
	if f.Limit > 0 {
		path += "&limit=" + strconv.Itoa(f.Limit)
	}

	var envelope struct {
		Messages    []domain.ChatMessage `json:"messages"`
		TotalPages  int                  `json:"totalPages"`
		CurrentPage int                  `json:"currentPage"`
		Total       int                  `json:"total"`
	}
	if err := c.do(http.MethodGet, path, nil, &envelope); err != nil {
		return store.ListPage{}, err
	}
	return store.ListPage{
		Messages:   envelope.Messages,
		Total:      envelope.Total,
		Page:       envelope.CurrentPage,
		TotalPages: envelope.TotalPages,
	}, nil
}

func (c *Client) MarkRead(id string) (domain.ChatMessage, error) {
	var envelope struct {
		Message domain.ChatMessage `json:"message"`
	}
	err := c.do(http.MethodPut, "/api/chat/messages/"+id+"/read", nil, &envelope)
	return envelope.Message, err
}

func (c *Client) Reply(id, text string) (domain.ChatMessage, error) {
	var envelope struct {
		Message domain.ChatMessage `json:"message"`
	}
	err := c.do(http.MethodPost, "/api/chat/messages/"+id+"/reply",
		map[string]string{"reply": text}, &envelope)
	return envelope.Message, err
}

func (c *Client) DeleteSession(sessionID string) (int, error) {
	var envelope struct {
		DeletedCount int `json:"deletedCount"`
	}
	err := c.do(http.MethodDelete, "/api/chat/session/"+sessionID, nil, &envelope)
	return envelope.DeletedCount, err
}

func (c *Client) Stats() (domain.Stats, error) {
	var envelope struct {
		Stats domain.Stats `json:"stats"`
	}
	err := c.do(http.MethodGet, "/api/chat/stats", nil, &envelope)
	return envelope.Stats, err
}

// Subscribe connects to the relay, joins the admin room and folds incoming
// events into the console until the context is cancelled or the connection
// drops. Reconnecting after a drop is the caller's decision.
func (c *Console) Subscribe(ctx context.Context, wsURL string) error {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing relay: %w", err)
	}
	defer sock.Close()

	join, err := relay.NewEnvelope(relay.EventJoin, relay.JoinParams{Room: domain.AdminRoom})
	if err != nil {
		return err
	}
	if err := sock.WriteJSON(join); err != nil {
		return fmt.Errorf("joining admin room: %w", err)
	}

	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	for {
		var env relay.Envelope
		if err := sock.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.ApplyEvent(env)
	}
}
