package ecm

import "time"

// EventType names what happened
type EventType string

const (
	EventAdded    EventType = "added"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
	EventIndex    EventType = "index"
	EventReloaded EventType = "reloaded"
)

// Event is published after a successful operation
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Component string    `json:"component,omitempty"`
	Version   string    `json:"version,omitempty"`
	Time      time.Time `json:"time"`
}
