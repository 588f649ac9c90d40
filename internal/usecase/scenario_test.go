package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/domain/mocks"
	"github.com/V4T54L/firewatch/internal/events"
)

type scenario struct {
	bus           *mocks.MemoryBus
	publisher     *Publisher
	fires         *mocks.MockFireRepository
	alerts        *mocks.MockAlertRepository
	notifications *mocks.MockNotificationRepository
	assignments   *mocks.MockFireAssignmentRepository
	responders    *mocks.MockResponderRepository
	handlers      map[string]Handler
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	s := &scenario{
		bus:         mocks.NewMemoryBus(),
		fires:       knownFires("F1"),
		assignments: &mocks.MockFireAssignmentRepository{},
		responders: &mocks.MockResponderRepository{Responders: []domain.Responder{
			{ID: "R1", UserID: "user-r1", Status: domain.ResponderBusy, Location: nearby},
		}},
	}
	s.alerts = &mocks.MockAlertRepository{Fires: s.fires}
	s.notifications = &mocks.MockNotificationRepository{Fires: s.fires}
	s.publisher = NewPublisher(s.bus, discardLogger())

	residents := &mocks.MockResidentRepository{}
	municipalities := &mocks.MockMunicipalityRepository{}
	s.handlers = map[string]Handler{
		domain.ConsumerFireDetected: NewFireDetectedFanout(s.publisher, discardLogger()),
		domain.ConsumerAlert:        NewAlertFanout(s.alerts, discardLogger(), nil),
		domain.ConsumerNotification: NewNotificationFanout(residents, s.responders, municipalities, s.notifications, 10000, discardLogger(), nil),
		domain.ConsumerAssignment:   NewAssignmentFanout(s.responders, residents, s.notifications, s.alerts, s.publisher, 10000, discardLogger(), nil),
	}

	if err := SetupBus(context.Background(), s.bus, domain.DefaultStreamConfig(""), domain.DefaultConsumers(3, time.Second)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return s
}

// settle drains every consumer until no consumer has work left.
func (s *scenario) settle(t *testing.T) {
	t.Helper()
	for round := 0; round < 10; round++ {
		total := 0
		for _, name := range s.bus.Consumers() {
			n, err := s.bus.Drain(context.Background(), name, s.handlers[name].Handle)
			if err != nil {
				t.Fatalf("drain %s: %v", name, err)
			}
			total += n
		}
		if total == 0 {
			return
		}
	}
	t.Fatal("bus did not settle")
}

func TestScenario_FireDetectedBroadcastsAlerts(t *testing.T) {
	s := newScenario(t)

	_, err := s.publisher.PublishFireDetected(context.Background(), events.FireDetected{
		FireID: "F1", FireLocation: fireSiteW, FireSeverityLevel: 3, IsVerified: true,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.settle(t)

	alerts := s.alerts.Snapshot()
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	roles := map[domain.Role]bool{}
	for _, a := range alerts {
		roles[a.TargetRole] = true
		if a.FireID != "F1" {
			t.Errorf("fire id = %s, want F1", a.FireID)
		}
		if !strings.Contains(a.Message, "severity level 3") {
			t.Errorf("message %q does not mention severity 3", a.Message)
		}
	}
	for _, role := range domain.BroadcastRoles {
		if !roles[role] {
			t.Errorf("missing alert for %s", role)
		}
	}
	if n := len(s.bus.DeadLetters); n != 0 {
		t.Errorf("expected no dead letters, got %d", n)
	}
}

func TestScenario_AssignmentNotifiesResponder(t *testing.T) {
	s := newScenario(t)

	_, err := s.publisher.PublishAssignmentCreated(context.Background(), events.AssignmentCreated{
		AssignmentID: "A1", FireID: "F1", ResponderID: "R1",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.settle(t)

	got := s.notifications.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.UserID != "user-r1" {
		t.Errorf("user id = %s, want user-r1", n.UserID)
	}
	if n.FireID == nil || *n.FireID != "F1" {
		t.Errorf("fire id = %v, want F1", n.FireID)
	}
	if n.Status != domain.NotificationSent {
		t.Errorf("status = %s, want Sent", n.Status)
	}
}

func TestScenario_DispatchWithoutAvailableResponder(t *testing.T) {
	s := newScenario(t)
	d := NewDispatcher(s.fires, s.responders, s.assignments, s.publisher, 10, time.Second, discardLogger(), nil)

	_, err := d.DispatchClosestResponder(context.Background(), "F1")
	if !errors.Is(err, domain.ErrNoResponderAvailable) {
		t.Fatalf("expected ErrNoResponderAvailable, got %v", err)
	}
	if len(s.assignments.Assignments) != 0 {
		t.Errorf("expected 0 assignments, got %d", len(s.assignments.Assignments))
	}
}

func TestScenario_DispatchNotifiesAssignedResponder(t *testing.T) {
	s := newScenario(t)
	s.responders.Responders[0].Status = domain.ResponderAvailable
	d := NewDispatcher(s.fires, s.responders, s.assignments, s.publisher, 10, time.Second, discardLogger(), nil)

	a, err := d.DispatchClosestResponder(context.Background(), "F1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	s.settle(t)

	got := s.notifications.Snapshot()
	if len(got) != 1 || got[0].UserID != "user-r1" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if !strings.Contains(got[0].Message, a.ID) {
		t.Errorf("message %q does not reference assignment %s", got[0].Message, a.ID)
	}
}

func TestScenario_MalformedMessageIsDeadLettered(t *testing.T) {
	s := newScenario(t)

	if _, err := s.bus.Publish(context.Background(), domain.SubjectAlertCreated, []byte(`{"alert_type":"FireAlert"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	s.settle(t)

	if len(s.bus.DeadLetters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(s.bus.DeadLetters))
	}
	dl := s.bus.DeadLetters[0]
	if dl.Consumer != domain.ConsumerAlert || dl.Message.DeliveryAttempt != 3 {
		t.Errorf("unexpected dead letter %+v", dl)
	}
	if len(s.bus.Pending(domain.ConsumerAlert)) != 0 {
		t.Error("dead-lettered message must not stay pending")
	}
}

func TestScenario_UnackedMessageReplaysOnRestart(t *testing.T) {
	s := newScenario(t)

	if _, err := s.publisher.PublishAlertCreated(context.Background(), events.AlertCreated{
		AlertType: domain.AlertTypeFire, AlertMessage: "Wildfire detected.", FireID: "F1",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// First process takes the message and dies before acknowledging.
	delivered, err := s.bus.Deliver(context.Background(), domain.ConsumerAlert, func(context.Context, domain.Message) error { return nil })
	if err != nil || !delivered {
		t.Fatalf("deliver: %v %v", delivered, err)
	}
	if len(s.bus.Pending(domain.ConsumerAlert)) != 1 {
		t.Fatal("expected the message to stay pending")
	}

	s.settle(t)
	if n := len(s.alerts.Snapshot()); n != 3 {
		t.Errorf("expected 3 alerts after replay, got %d", n)
	}
}
