// Package domain holds the core chat types shared by the store, relay,
// gateway and both client-side projections.
package domain

import "time"

// AdminName is the sentinel sender name carried by operator-authored messages.
const AdminName = "Admin"

// AdminRoom is the relay room shared by every admin console instance.
// Visitor connections join their own session id as the room name.
const AdminRoom = "admin"

// ChatMessage is one persisted chat record. A session's conversation is the
// set of records sharing a SessionID, ordered by Timestamp.
//
// JSON field names match the wire format the widget and admin console speak
// ("message" for the body, "isAdminMessage" for the author discriminator).
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	IsAdmin   bool      `json:"isAdminMessage,omitempty"`
}

// Stats are the aggregate counts reported to the admin dashboard.
// Replied counts visitor messages followed by a later admin message in the
// same session; Pending is the remainder of the visitor messages.
type Stats struct {
	Total   int `json:"total"`
	Unread  int `json:"unread"`
	Replied int `json:"replied"`
	Pending int `json:"pending"`
}
