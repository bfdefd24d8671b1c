package model

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds as they appear on the wire.
const (
	KindAlert        = "alert"
	KindIntersection = "intersection"
	KindDetection    = "detection"
)

// Event is any outbound notification for an actor.
type Event interface {
	EventKind() string
}

// Alert tells the recipient that an actor of the opposite role is close.
// Every field describes the other party; the bearing is measured from the
// recipient towards it.
type Alert struct {
	Kind           string  `json:"kind"`
	FromID         string  `json:"fromId"`
	FromRole       Role    `json:"fromRole"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distanceMeters"`
	BearingDegrees float64 `json:"bearingDegrees"`
}

func (Alert) EventKind() string { return KindAlert }

// IntersectionEvent reports a near/far transition for a tracked actor.
type IntersectionEvent struct {
	Kind           string  `json:"kind"`
	Entered        bool    `json:"entered"`
	PointID        int64   `json:"pointId,omitempty"`
	Description    string  `json:"description,omitempty"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
}

func (IntersectionEvent) EventKind() string { return KindIntersection }

// DetectionEvent relays a positive classifier result.
type DetectionEvent struct {
	Kind       string  `json:"kind"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (DetectionEvent) EventKind() string { return KindDetection }

// Envelope is what a transport delivers to one recipient.
type Envelope struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Event     Event     `json:"event"`
	At        time.Time `json:"at"`
}

// NewEnvelope stamps ev with a fresh id.
func NewEnvelope(recipient string, ev Event, at time.Time) Envelope {
	return Envelope{ID: uuid.NewString(), Recipient: recipient, Event: ev, At: at}
}
