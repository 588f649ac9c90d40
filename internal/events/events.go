// Package events defines one typed payload per bus subject and validates them at the
// serialization boundary.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/geo"
	"github.com/paulmach/orb"
)

// Payload is implemented by every subject's event type.
type Payload interface {
	Subject() domain.Subject
	Validate() error
}

// Level is a risk level or priority. Producers send it either as a JSON string or a number.
type Level string

func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Level(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("level must be a string or number: %w", err)
	}
	*l = Level(n.String())
	return nil
}

// FireDetected is published by the fire-confirmation workflow.
type FireDetected struct {
	FireID            string    `json:"fire_id"`
	FireLocation      string    `json:"fire_location"`
	FireSeverityLevel int       `json:"fire_severitylevel"`
	IsVerified        bool      `json:"is_verified"`
	AssignmentID      *string   `json:"assignment_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`

	location orb.Point
}

func (*FireDetected) Subject() domain.Subject { return domain.SubjectFireDetected }

func (e *FireDetected) Validate() error {
	if e.FireID == "" {
		return errors.New("fire_id is required")
	}
	p, err := geo.ParsePoint(e.FireLocation)
	if err != nil {
		return fmt.Errorf("fire_location: %w", err)
	}
	if e.FireSeverityLevel < 0 {
		return fmt.Errorf("fire_severitylevel must be non-negative, got %d", e.FireSeverityLevel)
	}
	e.location = p
	return nil
}

// Location is the parsed fire point. Valid after Validate.
func (e *FireDetected) Location() orb.Point { return e.location }

// FireSpread is published when a fire's geometry grows.
type FireSpread struct {
	FireID            string    `json:"fire_id"`
	FireLocation      string    `json:"fire_location"`
	FireSeverityLevel int       `json:"fire_severitylevel"`
	Timestamp         time.Time `json:"timestamp"`

	location orb.Geometry
}

func (*FireSpread) Subject() domain.Subject { return domain.SubjectFireSpread }

func (e *FireSpread) Validate() error {
	if e.FireID == "" {
		return errors.New("fire_id is required")
	}
	g, err := geo.ParseWKT(e.FireLocation)
	if err != nil {
		return fmt.Errorf("fire_location: %w", err)
	}
	if e.FireSeverityLevel < 0 {
		return fmt.Errorf("fire_severitylevel must be non-negative, got %d", e.FireSeverityLevel)
	}
	e.location = g
	return nil
}

// Location is the parsed point or polygon. Valid after Validate.
func (e *FireSpread) Location() orb.Geometry { return e.location }

// FireExtinguished is informational; no core consumer reads it.
type FireExtinguished struct {
	FireID    string    `json:"fire_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (*FireExtinguished) Subject() domain.Subject { return domain.SubjectFireExtinguished }

func (e *FireExtinguished) Validate() error {
	if e.FireID == "" {
		return errors.New("fire_id is required")
	}
	return nil
}

// FireRiskPredicted is published by the external prediction engine.
type FireRiskPredicted struct {
	ZoneLocation string    `json:"zone_location"`
	RiskLevel    Level     `json:"risk_level"`
	FireID       *string   `json:"fire_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	zone orb.Point
}

func (*FireRiskPredicted) Subject() domain.Subject { return domain.SubjectFireRiskPredicted }

func (e *FireRiskPredicted) Validate() error {
	p, err := geo.ParsePoint(e.ZoneLocation)
	if err != nil {
		return fmt.Errorf("zone_location: %w", err)
	}
	if e.RiskLevel == "" {
		return errors.New("risk_level is required")
	}
	if e.FireID != nil && *e.FireID == "" {
		e.FireID = nil
	}
	e.zone = p
	return nil
}

// Zone is the parsed zone centre. Valid after Validate.
func (e *FireRiskPredicted) Zone() orb.Point { return e.zone }

// AlertCreated asks the alert fan-out to broadcast an alert to every role.
type AlertCreated struct {
	AlertType         domain.AlertType `json:"alert_type"`
	TargetRole        domain.Role      `json:"target_role,omitempty"`
	AlertMessage      string           `json:"alert_message"`
	FireID            string           `json:"fire_id"`
	FireLocation      string           `json:"fire_location,omitempty"`
	FireSeverityLevel *int             `json:"fire_severitylevel,omitempty"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

func (*AlertCreated) Subject() domain.Subject { return domain.SubjectAlertCreated }

func (e *AlertCreated) Validate() error {
	if !e.AlertType.Valid() {
		return fmt.Errorf("unknown alert_type %q", e.AlertType)
	}
	if e.TargetRole != "" && !e.TargetRole.Valid() {
		return fmt.Errorf("unknown target_role %q", e.TargetRole)
	}
	if e.AlertMessage == "" {
		return errors.New("alert_message is required")
	}
	if e.FireID == "" {
		return errors.New("fire_id is required")
	}
	if e.FireLocation != "" {
		if _, err := geo.ParseWKT(e.FireLocation); err != nil {
			return fmt.Errorf("fire_location: %w", err)
		}
	}
	return nil
}

// AssignmentCreated announces a dispatch decision.
type AssignmentCreated struct {
	AssignmentID     string                  `json:"assignment_id"`
	AssignmentStatus domain.AssignmentStatus `json:"assignment_status"`
	FireID           string                  `json:"fire_id"`
	ResponderID      string                  `json:"responder_id"`
	Timestamp        time.Time               `json:"timestamp"`
}

func (*AssignmentCreated) Subject() domain.Subject { return domain.SubjectAssignmentCreated }

func (e *AssignmentCreated) Validate() error {
	switch {
	case e.AssignmentID == "":
		return errors.New("assignment_id is required")
	case e.FireID == "":
		return errors.New("fire_id is required")
	case e.ResponderID == "":
		return errors.New("responder_id is required")
	}
	if e.AssignmentStatus == "" {
		e.AssignmentStatus = domain.AssignmentActive
	}
	return nil
}

// EvacuationUpdated is published when an evacuation route changes.
type EvacuationUpdated struct {
	RouteID       string    `json:"route_id"`
	RouteStatus   string    `json:"route_status"`
	RoutePriority Level     `json:"route_priority"`
	FireID        string    `json:"fire_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func (*EvacuationUpdated) Subject() domain.Subject { return domain.SubjectEvacuationUpdated }

func (e *EvacuationUpdated) Validate() error {
	switch {
	case e.RouteID == "":
		return errors.New("route_id is required")
	case e.FireID == "":
		return errors.New("fire_id is required")
	case e.RouteStatus == "":
		return errors.New("route_status is required")
	}
	return nil
}

// newPayload returns an empty payload for subject.
func newPayload(subject domain.Subject) (Payload, error) {
	switch subject {
	case domain.SubjectFireDetected:
		return &FireDetected{}, nil
	case domain.SubjectFireSpread:
		return &FireSpread{}, nil
	case domain.SubjectFireExtinguished:
		return &FireExtinguished{}, nil
	case domain.SubjectFireRiskPredicted:
		return &FireRiskPredicted{}, nil
	case domain.SubjectAlertCreated:
		return &AlertCreated{}, nil
	case domain.SubjectAssignmentCreated:
		return &AssignmentCreated{}, nil
	case domain.SubjectEvacuationUpdated:
		return &EvacuationUpdated{}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSubject, subject)
}

// Decode parses and validates a payload published on subject. The returned value is
// one of the pointer types in this package. Validation failures wrap ErrMalformedPayload.
func Decode(subject domain.Subject, data []byte) (Payload, error) {
	p, err := newPayload(subject)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedPayload, subject, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedPayload, subject, err)
	}
	return p, nil
}

// Encode validates p and serializes it to its wire form.
func Encode(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedPayload, p.Subject(), err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", p.Subject(), err)
	}
	return data, nil
}
