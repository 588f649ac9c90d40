package domain

import "time"

// NotificationStatus tracks delivery of a notification to its user.
type NotificationStatus string

const (
	NotificationSent      NotificationStatus = "Sent"
	NotificationDelivered NotificationStatus = "Delivered"
	NotificationFailed    NotificationStatus = "Failed"
)

// CanTransitionTo reports whether a notification may move from s to next.
// Delivered and Failed are terminal.
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	return s == NotificationSent && (next == NotificationDelivered || next == NotificationFailed)
}

// Notification is one persisted row per targeted user.
type Notification struct {
	ID         string             `json:"id"`
	TargetRole Role               `json:"target_role"`
	Message    string             `json:"message"`
	Status     NotificationStatus `json:"status"`
	ExpiresAt  time.Time          `json:"expires_at"`
	CreatedAt  time.Time          `json:"created_at"`
	FireID     *string            `json:"fire_id,omitempty"`
	UserID     string             `json:"user_id"`
}

// ActiveAt reports whether the notification is still visible to readers at t.
func (n Notification) ActiveAt(t time.Time) bool {
	return t.Before(n.ExpiresAt)
}
