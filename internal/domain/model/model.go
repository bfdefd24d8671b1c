// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Role is one of the two opposing actor roles.
type Role string

const (
	RoleA Role = "A" // e.g. driver
	RoleB Role = "B" // e.g. cyclist
)

// ParseRole accepts A/B and the driver/cyclist aliases, case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "driver", "car":
		return RoleA, nil
	case "b", "biker", "cyclist", "bike":
		return RoleB, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Opposite returns the other role.
func (r Role) Opposite() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// Position is a WGS84 coordinate in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both coordinates are finite and within range.
func (p Position) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Transports a Conn can belong to.
const (
	TransportWS    = "ws"
	TransportKafka = "kafka"
)

// Conn identifies the channel an actor reports on. It is comparable and
// otherwise opaque to the core.
type Conn struct {
	Transport string
	ID        string
}

func (c Conn) String() string { return c.Transport + ":" + c.ID }

// PositionReport is one inbound position update.
type PositionReport struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// ReportID optionally identifies the message for redelivery dedupe.
	ReportID string `json:"report_id,omitempty"`
}

// UnmarshalJSON also accepts the legacy "userType" field in place of "role".
func (r *PositionReport) UnmarshalJSON(data []byte) error {
	type plain PositionReport
	var wire struct {
		plain
		UserType string `json:"userType"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = PositionReport(wire.plain)
	if r.Role == "" {
		r.Role = wire.UserType
	}
	return nil
}

// Position returns the reported coordinate.
func (r PositionReport) Position() Position {
	return Position{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Validate checks the report and returns its parsed role.
func (r PositionReport) Validate() (Role, error) {
	if strings.TrimSpace(r.ID) == "" {
		return "", ErrEmptyActorID
	}
	role, err := ParseRole(r.Role)
	if err != nil {
		return "", err
	}
	if !r.Position().Valid() {
		return "", fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, r.Latitude, r.Longitude)
	}
	return role, nil
}

// PointOfInterest is a static indexed point such as a road intersection.
type PointOfInterest struct {
	ID int64
	// Coordinates holds (longitude, latitude), GeoJSON order.
	Coordinates [2]float64
	Description string
}

// Position returns the point as a Position.
func (p PointOfInterest) Position() Position {
	return Position{Latitude: p.Coordinates[1], Longitude: p.Coordinates[0]}
}

// ActorView is a read-only copy of an actor used outside the event loop.
type ActorView struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Transport  string    `json:"transport"`
	InCooldown bool      `json:"inCooldown"`
	LastSeen   time.Time `json:"lastSeen"`
}
