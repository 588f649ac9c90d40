package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// FireEvent is owned by the storage layer. The fan-out and dispatch paths only read it.
type FireEvent struct {
	ID               string
	Source           string
	Location         orb.Geometry // orb.Point or orb.Polygon once the fire has spread
	SeverityLevel    int
	IsExtinguished   bool
	IsVerified       bool
	SpreadPrediction string
	CreatedAt        time.Time
}

// AssignmentStatus is the lifecycle state of a FireAssignment.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentResolved  AssignmentStatus = "resolved"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// CanTransitionTo reports whether an assignment may move from s to next.
// Only active assignments move, and only to a terminal state.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	return s == AssignmentActive && (next == AssignmentResolved || next == AssignmentCancelled)
}

// FireAssignment links a responder to a fire.
type FireAssignment struct {
	ID          string           `json:"id"`
	AssignedAt  time.Time        `json:"assigned_at"`
	Status      AssignmentStatus `json:"status"`
	FireID      string           `json:"fire_id"`
	ResponderID string           `json:"responder_id"`
}

// ResponderStatus is maintained outside the core whenever assignments are made or resolved.
type ResponderStatus string

const (
	ResponderAvailable ResponderStatus = "available"
	ResponderBusy      ResponderStatus = "busy"
	ResponderOffDuty   ResponderStatus = "off_duty"
)

// Resident is a user living in a monitored area.
type Resident struct {
	ID       string
	UserID   string
	Location orb.Point
}

// Responder is a field unit with a last-known location.
type Responder struct {
	ID       string
	UserID   string
	Status   ResponderStatus
	Location orb.Point
}

// Municipality is a regional authority. It receives every risk notification.
type Municipality struct {
	ID     string
	UserID string
	Name   string
}
