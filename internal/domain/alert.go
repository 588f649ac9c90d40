package domain

import "time"

// AlertType classifies a broadcast alert.
type AlertType string

const (
	AlertTypeFire       AlertType = "FireAlert"
	AlertTypeEvacuation AlertType = "EvacuationAlert"
	AlertTypePrediction AlertType = "PredictionAlert"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeFire, AlertTypeEvacuation, AlertTypePrediction:
		return true
	}
	return false
}

// Role is an actor role targeted by alerts and notifications.
type Role string

const (
	RoleResident     Role = "Resident"
	RoleResponder    Role = "Responder"
	RoleMunicipality Role = "Municipality"
	RoleAdmin        Role = "Admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleResponder, RoleMunicipality, RoleAdmin:
		return true
	}
	return false
}

// BroadcastRoles are the roles every broadcast alert fans out to. Admin is not included.
var BroadcastRoles = []Role{RoleResident, RoleResponder, RoleMunicipality}

const (
	AlertTTL                  = 24 * time.Hour
	RiskNotificationTTL       = 6 * 24 * time.Hour
	AssignmentNotificationTTL = 24 * time.Hour
)

// Alert is one persisted row per targeted role.
type Alert struct {
	ID         string    `json:"id"`
	AlertType  AlertType `json:"alert_type"`
	TargetRole Role      `json:"target_role"`
	Message    string    `json:"message"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	FireID     string    `json:"fire_id"`
}

// ActiveAt reports whether the alert is still visible to readers at t.
func (a Alert) ActiveAt(t time.Time) bool {
	return t.Before(a.ExpiresAt)
}
