package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/trierg/go/internal/store"
)

// RaceEvent is the envelope every WebSocket client receives.
type RaceEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType distinguishes the snapshot feeds pushed to display clients.
type EventType string

const (
	EventTypeActiveRaces EventType = "ActiveRacesSnapshot"
	EventTypeResults     EventType = "ResultsSnapshot"
	EventTypePersons     EventType = "PersonsSnapshot"
)

// snapshotEvent wraps a store snapshot for broadcast. Unknown collections
// (users) are not pushed to display clients.
func snapshotEvent(s store.Snapshot) (*RaceEvent, bool) {
	var t EventType
	switch s.Collection {
	case store.CollectionActiveRaces:
		t = EventTypeActiveRaces
	case store.CollectionResults:
		t = EventTypeResults
	case store.CollectionPersons:
		t = EventTypePersons
	default:
		return nil, false
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, false
	}
	return &RaceEvent{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}, true
}
