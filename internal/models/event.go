package models

import "time"

// EventType names a mission state change.
type EventType string

const (
	EventAssigned EventType = "missions.assigned"
	EventProgress EventType = "missions.progress"
	EventClaimed  EventType = "missions.claimed"
	EventCleared  EventType = "missions.cleared"
)

// Event is published after every persisted mutation of a player's missions.
type Event struct {
	ID       string     `json:"id"`
	Type     EventType  `json:"type"`
	PlayerID string     `json:"player_id"`
	Slots    []int      `json:"slots,omitempty"`
	Missions []*Mission `json:"missions,omitempty"`
	At       time.Time  `json:"at"`
}

// StreamSnapshot is the first message sent on an event stream.
const StreamSnapshot = "missions.snapshot"

// StreamMessage is one websocket frame of the event stream. Snapshot
// messages carry Missions, all others carry Event.
type StreamMessage struct {
	Type     string        `json:"type"`
	Missions *MissionsView `json:"missions,omitempty"`
	Event    *Event        `json:"event,omitempty"`
}
