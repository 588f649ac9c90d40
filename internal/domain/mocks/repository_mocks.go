package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/geo"
	"github.com/paulmach/orb"
)

// MockFireRepository is a mock implementation of domain.FireRepository for testing.
type MockFireRepository struct {
	mu    sync.Mutex
	Fires map[string]*domain.FireEvent
	Err   error
}

func (m *MockFireRepository) GetByID(ctx context.Context, id string) (*domain.FireEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	f, ok := m.Fires[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

// Has reports whether the fire exists. A nil repository accepts every id.
func (m *MockFireRepository) Has(id string) bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Fires[id]
	return ok
}

// MockAlertRepository is a mock implementation of domain.AlertRepository for testing.
// When Fires is set, Create enforces the fire reference like the database does.
type MockAlertRepository struct {
	mu         sync.Mutex
	Alerts     []domain.Alert
	Fires      *MockFireRepository
	CreateFunc func(a domain.Alert) error
	CreateErr  error
	ListErr    error
	DeleteErr  error
	Calls      int
}

func (m *MockAlertRepository) Create(ctx context.Context, a domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.CreateFunc != nil {
		if err := m.CreateFunc(a); err != nil {
			return err
		}
	}
	if !m.Fires.Has(a.FireID) {
		return domain.ErrFireNotFound
	}
	m.Alerts = append(m.Alerts, a)
	return nil
}

func (m *MockAlertRepository) ListActive(ctx context.Context, role domain.Role, now time.Time) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.Alert
	for _, a := range m.Alerts {
		if a.TargetRole == role && a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(a domain.Alert) bool { return !a.ActiveAt(now) })
}

func (m *MockAlertRepository) DeleteByFire(ctx context.Context, fireID string) (int64, error) {
	return m.deleteWhere(func(a domain.Alert) bool { return a.FireID == fireID })
}

func (m *MockAlertRepository) deleteWhere(match func(domain.Alert) bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	kept := m.Alerts[:0]
	var n int64
	for _, a := range m.Alerts {
		if match(a) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.Alerts = kept
	return n, nil
}

// Snapshot returns a copy of the stored alerts.
func (m *MockAlertRepository) Snapshot() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.Alerts...)
}

// MockNotificationRepository is a mock implementation of domain.NotificationRepository for testing.
type MockNotificationRepository struct {
	mu            sync.Mutex
	Notifications []domain.Notification
	Fires         *MockFireRepository
	CreateFunc    func(n domain.Notification) error
	CreateErr     error
	Calls         int
}

func (m *MockNotificationRepository) Create(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.CreateFunc != nil {
		if err := m.CreateFunc(n); err != nil {
			return err
		}
	}
	if n.FireID != nil && !m.Fires.Has(*n.FireID) {
		return domain.ErrFireNotFound
	}
	m.Notifications = append(m.Notifications, n)
	return nil
}

func (m *MockNotificationRepository) UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Notifications {
		if m.Notifications[i].ID != id {
			continue
		}
		if !m.Notifications[i].Status.CanTransitionTo(status) {
			return domain.ErrInvalidStatusTransition
		}
		m.Notifications[i].Status = status
		return nil
	}
	return domain.ErrNotFound
}

func (m *MockNotificationRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.Notifications {
		if n.UserID == userID && n.ActiveAt(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Snapshot returns a copy of the stored notifications.
func (m *MockNotificationRepository) Snapshot() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.Notifications...)
}

// MockFireAssignmentRepository is a mock implementation of domain.FireAssignmentRepository for testing.
type MockFireAssignmentRepository struct {
	mu          sync.Mutex
	Assignments []domain.FireAssignment
	CreateErr   error
}

func (m *MockFireAssignmentRepository) Create(ctx context.Context, a domain.FireAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Assignments = append(m.Assignments, a)
	return nil
}

// MockResidentRepository is a mock implementation of domain.ResidentRepository for testing.
// FindNear filters by geodesic distance.
type MockResidentRepository struct {
	mu        sync.Mutex
	Residents []domain.Resident
	Err       error
}

func (m *MockResidentRepository) FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]domain.Resident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.Resident
	for _, r := range m.Residents {
		if geo.Within(r.Location, area, radiusMeters) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MockResponderRepository is a mock implementation of domain.ResponderRepository for testing.
// Delay makes FindNearestAvailable block until it elapses or the context ends.
type MockResponderRepository struct {
	mu         sync.Mutex
	Responders []domain.Responder
	Err        error
	GetErr     error
	Delay      time.Duration
}

func (m *MockResponderRepository) GetByID(ctx context.Context, id string) (*domain.Responder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, r := range m.Responders {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockResponderRepository) FindNear(ctx context.Context, area orb.Geometry, radiusMeters float64) ([]domain.Responder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.Responder
	for _, r := range m.Responders {
		if geo.Within(r.Location, area, radiusMeters) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockResponderRepository) FindNearestAvailable(ctx context.Context, area orb.Geometry, limit int) ([]domain.Responder, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	byID := make(map[string]domain.Responder, len(m.Responders))
	var candidates []geo.Candidate
	for _, r := range m.Responders {
		if r.Status != domain.ResponderAvailable {
			continue
		}
		byID[r.ID] = r
		candidates = append(candidates, geo.Candidate{ID: r.ID, Location: r.Location})
	}
	var out []domain.Responder
	for _, rk := range geo.Rank(candidates, area) {
		if len(out) == limit {
			break
		}
		out = append(out, byID[rk.ID])
	}
	return out, nil
}

// MockMunicipalityRepository is a mock implementation of domain.MunicipalityRepository for testing.
type MockMunicipalityRepository struct {
	Municipalities []domain.Municipality
	Err            error
}

func (m *MockMunicipalityRepository) ListAll(ctx context.Context) ([]domain.Municipality, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]domain.Municipality(nil), m.Municipalities...), nil
}

// MockBusAdminRepository is a mock implementation of domain.BusAdminRepository for testing.
type MockBusAdminRepository struct {
	mu          sync.Mutex
	Consumers   []domain.ConsumerGroupInfo
	Summary     *domain.PendingMessageSummary
	Pending     []domain.PendingMessageDetail
	DeadLetters []domain.DeadLetter
	AckedIDs    []string
	ReplayedIDs []string
	LastStartID string
	LastCount   int64
	Err         error
	ReplayErr   error
}

func (m *MockBusAdminRepository) ListConsumers(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Consumers, nil
}

func (m *MockBusAdminRepository) GetPendingSummary(ctx context.Context, subject domain.Subject, consumer string) (*domain.PendingMessageSummary, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Summary, nil
}

func (m *MockBusAdminRepository) GetPendingMessages(ctx context.Context, subject domain.Subject, consumer, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.LastStartID, m.LastCount = startID, count
	return m.Pending, nil
}

func (m *MockBusAdminRepository) AcknowledgeMessages(ctx context.Context, subject domain.Subject, consumer string, messageIDs ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.AckedIDs = append(m.AckedIDs, messageIDs...)
	return int64(len(messageIDs)), nil
}

func (m *MockBusAdminRepository) ListDeadLetters(ctx context.Context, count int64) ([]domain.DeadLetter, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.DeadLetters, nil
}

func (m *MockBusAdminRepository) ReplayDeadLetter(ctx context.Context, id string) (domain.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplayErr != nil {
		return domain.PubAck{}, m.ReplayErr
	}
	for _, dl := range m.DeadLetters {
		if dl.ID == id {
			m.ReplayedIDs = append(m.ReplayedIDs, id)
			return domain.PubAck{Subject: dl.Subject, Sequence: "replayed-" + id}, nil
		}
	}
	return domain.PubAck{}, domain.ErrNotFound
}
