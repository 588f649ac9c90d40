package domain

import (
	"context"
	"time"

	"github.com/paulmach/orb"
)

// FireRepository reads fire events owned by the fire workflows.
type FireRepository interface {
	// GetByID returns ErrNotFound when no fire has the id.
	GetByID(ctx context.Context, id string) (*FireEvent, error)
}

// AlertRepository persists broadcast alerts.
type AlertRepository interface {
	// Create returns ErrFireNotFound when alert.FireID does not reference an existing fire.
	Create(ctx context.Context, alert Alert) error

	// ListActive returns alerts for role whose expiry is after now.
	ListActive(ctx context.Context, role Role, now time.Time) ([]Alert, error)

	// DeleteExpired removes alerts whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteByFire removes every alert of a deleted fire.
	DeleteByFire(ctx context.Context, fireID string) (int64, error)
}

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	// Create returns ErrFireNotFound when a non-nil FireID does not reference an existing fire.
	Create(ctx context.Context, n Notification) error

	// UpdateStatus moves a notification out of Sent. Terminal states return ErrInvalidStatusTransition.
	UpdateStatus(ctx context.Context, id string, status NotificationStatus) error

	// ListActiveForUser returns the user's notifications whose expiry is after now.
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]Notification, error)
}

// FireAssignmentRepository persists dispatch decisions.
type FireAssignmentRepository interface {
	Create(ctx context.Context, a FireAssignment) error
}

// ResidentRepository answers proximity queries over residents.
type ResidentRepository interface {
	// FindNear returns residents within radiusMeters of area. A polygon area matches
	// residents inside it or within radiusMeters of its boundary.
	FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]Resident, error)
}

// ResponderRepository answers lookups and proximity queries over responders.
type ResponderRepository interface {
	// GetByID returns ErrNotFound when no responder has the id.
	GetByID(ctx context.Context, id string) (*Responder, error)

	FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]Responder, error)

	// FindNearestAvailable returns up to limit responders with status available, closest first.
	FindNearestAvailable(ctx context.Context, area orb.Geometry, limit int) ([]Responder, error)
}

// MunicipalityRepository lists regional authorities.
type MunicipalityRepository interface {
	ListAll(ctx context.Context) ([]Municipality, error)
}
