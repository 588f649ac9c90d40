package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/events"
	"github.com/V4T54L/firewatch/internal/geo"
	"github.com/google/uuid"
)

// NotificationFanout notifies every user affected by a fire risk prediction: residents and
// responders near the zone plus all municipalities.
type NotificationFanout struct {
	residents      domain.ResidentRepository
	responders     domain.ResponderRepository
	municipalities domain.MunicipalityRepository
	notifications  domain.NotificationRepository
	radiusMeters   float64
	logger         *slog.Logger
	metrics        MetricsRecorder
	now            func() time.Time
	newID          func() string
}

// NewNotificationFanout creates a new NotificationFanout.
func NewNotificationFanout(
	residents domain.ResidentRepository,
	responders domain.ResponderRepository,
	municipalities domain.MunicipalityRepository,
	notifications domain.NotificationRepository,
	radiusMeters float64,
	logger *slog.Logger,
	m MetricsRecorder,
) *NotificationFanout {
	return &NotificationFanout{
		residents:      residents,
		responders:     responders,
		municipalities: municipalities,
		notifications:  notifications,
		radiusMeters:   radiusMeters,
		logger:         logger.With("component", "notification_fanout"),
		metrics:        orNoOp(m),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// Handle decodes a fire.risk.predicted message and fans it out. Query failures are returned
// so the message is redelivered; per-user write failures are not.
func (f *NotificationFanout) Handle(ctx context.Context, msg domain.Message) error {
	p, err := events.Decode(msg.Subject, msg.Payload)
	if err != nil {
		return err
	}
	e, ok := p.(*events.FireRiskPredicted)
	if !ok {
		return fmt.Errorf("%w: %s on notification consumer", domain.ErrUnknownSubject, msg.Subject)
	}
	if _, err := f.HandleRiskPredicted(ctx, e); err != nil {
		return err
	}
	return ctx.Err()
}

type recipient struct {
	userID string
	role   domain.Role
}

// HandleRiskPredicted runs the three lookup phases, then creates one Notification per
// distinct user. The first user to appear keeps its role.
func (f *NotificationFanout) HandleRiskPredicted(ctx context.Context, e *events.FireRiskPredicted) (BatchResult, error) {
	zone := e.Zone()

	residents, err := f.residents.FindNear(ctx, zone, f.radiusMeters)
	if err != nil {
		return BatchResult{}, fmt.Errorf("find residents near zone: %w", err)
	}
	responders, err := f.responders.FindNear(ctx, zone, f.radiusMeters)
	if err != nil {
		return BatchResult{}, fmt.Errorf("find responders near zone: %w", err)
	}
	municipalities, err := f.municipalities.ListAll(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list municipalities: %w", err)
	}

	seen := make(map[string]struct{}, len(residents)+len(responders)+len(municipalities))
	var recipients []recipient
	add := func(userID string, role domain.Role) {
		if userID == "" {
			return
		}
		if _, dup := seen[userID]; dup {
			return
		}
		seen[userID] = struct{}{}
		recipients = append(recipients, recipient{userID: userID, role: role})
	}
	for _, r := range residents {
		add(r.UserID, domain.RoleResident)
	}
	for _, r := range responders {
		add(r.UserID, domain.RoleResponder)
	}
	for _, m := range municipalities {
		add(m.UserID, domain.RoleMunicipality)
	}

	message := RiskMessage(geo.FormatWKT(zone), string(e.RiskLevel))
	now := f.now()
	var res BatchResult
	for _, rc := range recipients {
		if ctx.Err() != nil {
			res.Skipped++
			continue
		}
		n := domain.Notification{
			ID:         f.newID(),
			TargetRole: rc.role,
			Message:    message,
			Status:     domain.NotificationSent,
			ExpiresAt:  now.Add(domain.RiskNotificationTTL),
			CreatedAt:  now,
			FireID:     e.FireID,
			UserID:     rc.userID,
		}
		err := f.notifications.Create(ctx, n)
		res.record(err)
		switch {
		case errors.Is(err, domain.ErrFireNotFound):
			f.logger.Warn("notification references unknown fire, skipping user", "user_id", rc.userID, "role", rc.role)
		case err != nil:
			f.logger.Warn("failed to create notification, skipping user", "user_id", rc.userID, "role", rc.role, "error", err)
		}
	}

	f.metrics.ObserveRecords("notification", res)
	f.logger.Info("risk notification fan-out complete",
		"residents", len(residents),
		"responders", len(responders),
		"municipalities", len(municipalities),
		"result", res.String(),
	)
	return res, nil
}

// RiskMessage is the shared text of a risk prediction notification.
func RiskMessage(zone, level string) string {
	return fmt.Sprintf("Fire risk level %s predicted for the zone around %s over the next 6 days.", level, zone)
}
