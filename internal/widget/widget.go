// Package widget models the visitor-side chat client: an identity-gated
// state machine over a locally persisted transcript, speaking the relay's
// event protocol and reconciling against the server transcript once its
// first message is acknowledged.
package widget

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/relay"
)

// State is the widget lifecycle phase.
type State string

const (
	// StateUninitialized is the zero state before persisted state is loaded.
	StateUninitialized State = "uninitialized"
	// StateCollectingIdentity waits for the visitor's name and email.
	StateCollectingIdentity State = "collectingIdentity"
	// StateActive is a started chat; messages can be sent.
	StateActive State = "active"
)

// greeting builds the local-only welcome shown when a chat starts. It is
// never persisted server-side and disappears on reconciliation.
func greeting(name string) string {
	return fmt.Sprintf("Hi %s! How can we help you today?", name)
}

// Sender pushes an event to the relay. The live implementation is a
// WebSocket connection; tests substitute a capture.
type Sender interface {
	SendEvent(event string, data any) error
}

// TranscriptSource fetches a session's server-side transcript.
type TranscriptSource interface {
	Transcript(sessionID string) ([]domain.ChatMessage, error)
}

// Widget is the visitor chat client state. All methods are safe to call
// from the UI and the connection read loop; state is guarded internally.
type Widget struct {
	persist *FileStore
	source  TranscriptSource
	sender  Sender
	log     *logging.Logger

	mu         sync.Mutex
	state      State
	sessionID  string
	name       string
	email      string
	synced     bool
	transcript []domain.ChatMessage
	lastError  string
}

// New creates a widget and loads any persisted state. A visitor returning
// mid-conversation resumes in the active state with their transcript.
func New(persist *FileStore, source TranscriptSource, sender Sender, log *logging.Logger) (*Widget, error) {
	w := &Widget{
		persist: persist,
		source:  source,
		sender:  sender,
		log:     log.Component("widget"),
		state:   StateUninitialized,
	}

	snap, err := persist.Load()
	if err != nil {
		return nil, err
	}
	w.sessionID = snap.SessionID
	w.name = snap.Name
	w.email = snap.Email
	w.synced = snap.Synced
	w.transcript = snap.Transcript

	if w.sessionID == "" {
		w.sessionID = uuid.New().String()
	}
	if snap.HasStarted {
		w.state = StateActive
	} else {
		w.state = StateCollectingIdentity
	}

	return w, w.save()
}

// State returns the current lifecycle phase.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SessionID returns the widget's session id; it doubles as the relay room.
func (w *Widget) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Identity returns the collected visitor name and email.
func (w *Widget) Identity() (name, email string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name, w.email
}

// LastError returns the most recent send rejection, or empty.
func (w *Widget) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// Transcript returns the messages as the widget currently shows them.
func (w *Widget) Transcript() []domain.ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.ChatMessage(nil), w.transcript...)
}

// Start records the visitor identity and activates the chat with a local
// greeting. Both fields are required; nothing touches the server yet.
func (w *Widget) Start(name, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateCollectingIdentity {
		return &domain.ValidationError{Field: "state", Reason: "chat already started"}
	}
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return &domain.ValidationError{Field: "name", Reason: "required"}
	}
	if email == "" {
		return &domain.ValidationError{Field: "email", Reason: "required"}
	}

	w.name = name
	w.email = email
	w.state = StateActive
	w.transcript = append(w.transcript, domain.ChatMessage{
		ID:        "greeting-" + w.sessionID,
		SessionID: w.sessionID,
		Name:      domain.AdminName,
		Body:      greeting(name),
		Timestamp: time.Now().UTC(),
		Read:      true,
		IsAdmin:   true,
	})
	return w.save()
}

// Send pushes a visitor message to the relay. The message joins the local
// transcript only when the server acknowledges it with messageSent.
func (w *Widget) Send(text string) error {
	w.mu.Lock()
	if w.state != StateActive {
		w.mu.Unlock()
		return &domain.ValidationError{Field: "state", Reason: "chat not started"}
	}
	if strings.TrimSpace(text) == "" {
		w.mu.Unlock()
		return &domain.ValidationError{Field: "message", Reason: "empty"}
	}
	if w.sender == nil {
		w.mu.Unlock()
		return &domain.ValidationError{Field: "connection", Reason: "not connected"}
	}
	params := relay.SendMessageParams{
		Name:      w.name,
		Email:     w.email,
		Message:   text,
		SessionID: w.sessionID,
	}
	sender := w.sender
	w.mu.Unlock()

	return sender.SendEvent(relay.EventSendMessage, params)
}

// NewChat abandons the current conversation: a fresh session id, an empty
// transcript, identity cleared, and the relay connection dropped since it
// is joined to the old session's room. The old session's records stay on
// the server until an admin deletes them.
func (w *Widget) NewChat() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if closer, ok := w.sender.(interface{ Close() error }); ok {
		closer.Close()
	}
	w.sender = nil
	w.sessionID = uuid.New().String()
	w.name = ""
	w.email = ""
	w.synced = false
	w.transcript = nil
	w.lastError = ""
	w.state = StateCollectingIdentity
	return w.save()
}

// HandleEvent folds a relay event into the widget state.
func (w *Widget) HandleEvent(env relay.Envelope) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch env.Event {
	case relay.EventMessageSent:
		var ack relay.MessageSent
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			w.log.Warn().Err(err).Msg("malformed messageSent event")
			return
		}
		w.handleAck(ack)
	case relay.EventMessageError:
		var merr relay.MessageError
		if err := json.Unmarshal(env.Data, &merr); err != nil {
			w.log.Warn().Err(err).Msg("malformed messageError event")
			return
		}
		w.lastError = merr.Error
	case relay.EventAdminReply:
		var ar relay.AdminReply
		if err := json.Unmarshal(env.Data, &ar); err != nil {
			w.log.Warn().Err(err).Msg("malformed adminReply event")
			return
		}
		w.upsert(domain.ChatMessage{
			ID:        ar.MessageID,
			SessionID: w.sessionID,
			Name:      domain.AdminName,
			Body:      ar.Reply,
			Timestamp: ar.RepliedAt,
			Read:      true,
			IsAdmin:   true,
		})
		if err := w.save(); err != nil {
			w.log.Warn().Err(err).Msg("persisting transcript")
		}
	default:
		w.log.Debug().Str("event", env.Event).Msg("ignoring event")
	}
}

// handleAck records an acknowledged message. The first ack of a session
// triggers a one-time reconciliation: the server transcript replaces the
// local one wholesale, which also drops the local greeting.
func (w *Widget) handleAck(ack relay.MessageSent) {
	w.lastError = ""
	w.upsert(ack.Message)

	if !w.synced {
		msgs, err := w.source.Transcript(w.sessionID)
		if err != nil {
			w.log.Warn().Err(err).Msg("transcript sync failed, will retry on next ack")
		} else {
			w.transcript = msgs
			w.synced = true
		}
	}

	if err := w.save(); err != nil {
		w.log.Warn().Err(err).Msg("persisting transcript")
	}
}

// upsert inserts or replaces by id, keeping the transcript time-ordered.
func (w *Widget) upsert(msg domain.ChatMessage) {
	for i, m := range w.transcript {
		if m.ID == msg.ID {
			w.transcript[i] = msg
			return
		}
	}
	w.transcript = append(w.transcript, msg)
	sort.SliceStable(w.transcript, func(i, j int) bool {
		if w.transcript[i].Timestamp.Equal(w.transcript[j].Timestamp) {
			return w.transcript[i].ID < w.transcript[j].ID
		}
		return w.transcript[i].Timestamp.Before(w.transcript[j].Timestamp)
	})
}

func (w *Widget) save() error {
	return w.persist.Save(Snapshot{
		SessionID:  w.sessionID,
		Name:       w.name,
		Email:      w.email,
		HasStarted: w.state == StateActive,
		Synced:     w.synced,
		Transcript: w.transcript,
	})
}
