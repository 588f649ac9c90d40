package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/domain/mocks"
	"github.com/V4T54L/firewatch/internal/events"
	"github.com/paulmach/orb"
)

var (
	fireSite  = orb.Point{-122.4, 37.7}
	nearby    = orb.Point{-122.41, 37.7}
	nearby2   = orb.Point{-122.39, 37.71}
	farAway   = orb.Point{-121.0, 37.7}
	fireSiteW = "POINT(-122.4 37.7)"
)

func knownFires(ids ...string) *mocks.MockFireRepository {
	fires := &mocks.MockFireRepository{Fires: map[string]*domain.FireEvent{}}
	for _, id := range ids {
		fires.Fires[id] = &domain.FireEvent{ID: id, Location: fireSite, SeverityLevel: 3}
	}
	return fires
}

func TestFireDetectedFanout_Handle(t *testing.T) {
	detected := &events.FireDetected{FireID: "F1", FireLocation: fireSiteW, FireSeverityLevel: 3, IsVerified: true}

	t.Run("Republishes as alert", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		f := NewFireDetectedFanout(NewPublisher(bus, discardLogger()), discardLogger())

		if err := f.Handle(context.Background(), encodeMessage(t, detected)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		published := bus.Published(domain.SubjectAlertCreated)
		if len(published) != 1 {
			t.Fatalf("expected 1 alert.created, got %d", len(published))
		}
		var alert events.AlertCreated
		if err := json.Unmarshal(published[0].Payload, &alert); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if alert.FireID != "F1" || alert.AlertType != domain.AlertTypeFire {
			t.Errorf("unexpected alert %+v", alert)
		}
		if !strings.Contains(alert.AlertMessage, "severity level 3") {
			t.Errorf("message %q does not mention severity", alert.AlertMessage)
		}
		if alert.FireSeverityLevel == nil || *alert.FireSeverityLevel != 3 {
			t.Errorf("severity not carried: %v", alert.FireSeverityLevel)
		}
	})

	t.Run("Malformed payload is not acknowledged", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		f := NewFireDetectedFanout(NewPublisher(bus, discardLogger()), discardLogger())

		msg := domain.Message{ID: "1", Subject: domain.SubjectFireDetected, Payload: []byte(`{"fire_id":"F1","fire_location":"nowhere"}`)}
		err := f.Handle(context.Background(), msg)
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
		if n := len(bus.Published(domain.SubjectAlertCreated)); n != 0 {
			t.Errorf("expected nothing published, got %d", n)
		}
	})

	t.Run("Publish failure is not acknowledged", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		bus.PublishErr = errors.New("bus unreachable")
		f := NewFireDetectedFanout(NewPublisher(bus, discardLogger()), discardLogger())

		if err := f.Handle(context.Background(), encodeMessage(t, detected)); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}

func TestAlertFanout_Handle(t *testing.T) {
	created := &events.AlertCreated{AlertType: domain.AlertTypeFire, AlertMessage: "Wildfire detected.", FireID: "F1"}

	t.Run("One alert per broadcast role", func(t *testing.T) {
		repo := &mocks.MockAlertRepository{Fires: knownFires("F1")}
		metrics := newRecordingMetrics()
		f := NewAlertFanout(repo, discardLogger(), metrics)
		f.now = fixedClock

		if err := f.Handle(context.Background(), encodeMessage(t, created)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		alerts := repo.Snapshot()
		if len(alerts) != 3 {
			t.Fatalf("expected 3 alerts, got %d", len(alerts))
		}
		for i, role := range domain.BroadcastRoles {
			a := alerts[i]
			if a.TargetRole != role {
				t.Errorf("alert %d role = %s, want %s", i, a.TargetRole, role)
			}
			if a.FireID != "F1" || a.AlertType != domain.AlertTypeFire {
				t.Errorf("alert %d = %+v", i, a)
			}
			if !a.ExpiresAt.Equal(fixedNow.Add(domain.AlertTTL)) {
				t.Errorf("alert %d expires at %v", i, a.ExpiresAt)
			}
			if a.TargetRole == domain.RoleAdmin {
				t.Error("admin must not receive broadcast alerts")
			}
		}
		if got := metrics.records["alert"]; got.Succeeded != 3 || got.Failed != 0 {
			t.Errorf("unexpected batch result %s", got.String())
		}
	})

	t.Run("Failed role does not abort the batch", func(t *testing.T) {
		repo := &mocks.MockAlertRepository{
			Fires: knownFires("F1"),
			CreateFunc: func(a domain.Alert) error {
				if a.TargetRole == domain.RoleResponder {
					return errors.New("transient storage error")
				}
				return nil
			},
		}
		f := NewAlertFanout(repo, discardLogger(), nil)

		if err := f.Handle(context.Background(), encodeMessage(t, created)); err != nil {
			t.Fatalf("expected message to be acknowledged, got %v", err)
		}
		if repo.Calls != 3 {
			t.Errorf("expected 3 create attempts, got %d", repo.Calls)
		}
		if n := len(repo.Snapshot()); n != 2 {
			t.Errorf("expected 2 alerts, got %d", n)
		}
	})

	t.Run("Unknown fire is skipped per role", func(t *testing.T) {
		repo := &mocks.MockAlertRepository{Fires: knownFires()}
		f := NewAlertFanout(repo, discardLogger(), nil)

		res := f.HandleAlertCreated(context.Background(), created)
		if res.Attempted != 3 || res.Failed != 3 {
			t.Errorf("unexpected batch result %s", res.String())
		}
	})

	t.Run("Evacuation update", func(t *testing.T) {
		repo := &mocks.MockAlertRepository{Fires: knownFires("F1")}
		f := NewAlertFanout(repo, discardLogger(), nil)
		update := &events.EvacuationUpdated{RouteID: "E1", RouteStatus: "closed", RoutePriority: "2", FireID: "F1"}

		if err := f.Handle(context.Background(), encodeMessage(t, update)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, a := range repo.Snapshot() {
			if a.AlertType != domain.AlertTypeEvacuation {
				t.Errorf("alert type = %s, want EvacuationAlert", a.AlertType)
			}
			if !strings.Contains(a.Message, "E1") || !strings.Contains(a.Message, "closed") {
				t.Errorf("message %q missing route details", a.Message)
			}
		}
	})

	t.Run("Redelivery after partial batch does not lose alerts", func(t *testing.T) {
		calls := 0
		repo := &mocks.MockAlertRepository{
			Fires: knownFires("F1"),
			CreateFunc: func(a domain.Alert) error {
				calls++
				if calls == 2 {
					panic("crash mid-batch")
				}
				return nil
			},
		}
		f := NewAlertFanout(repo, discardLogger(), nil)
		msg := encodeMessage(t, created)

		func() {
			defer func() { _ = recover() }()
			_ = f.Handle(context.Background(), msg)
		}()
		if err := f.Handle(context.Background(), msg); err != nil {
			t.Fatalf("redelivery failed: %v", err)
		}

		roles := map[domain.Role]int{}
		for _, a := range repo.Snapshot() {
			roles[a.TargetRole]++
		}
		for _, role := range domain.BroadcastRoles {
			if roles[role] < 1 {
				t.Errorf("role %s lost its alert", role)
			}
		}
	})

	t.Run("Cancelled context leaves message unacknowledged", func(t *testing.T) {
		repo := &mocks.MockAlertRepository{Fires: knownFires("F1")}
		f := NewAlertFanout(repo, discardLogger(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := f.Handle(ctx, encodeMessage(t, created)); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestNotificationFanout_Handle(t *testing.T) {
	fireID := "F1"
	predicted := &events.FireRiskPredicted{ZoneLocation: fireSiteW, RiskLevel: "high", FireID: &fireID}

	newFanout := func(notifications *mocks.MockNotificationRepository) *NotificationFanout {
		residents := &mocks.MockResidentRepository{Residents: []domain.Resident{
			{ID: "res-1", UserID: "u-res-1", Location: nearby},
			{ID: "res-2", UserID: "u-res-2", Location: farAway},
			{ID: "res-3", UserID: "u-shared", Location: nearby2},
		}}
		responders := &mocks.MockResponderRepository{Responders: []domain.Responder{
			{ID: "R1", UserID: "u-resp-1", Status: domain.ResponderBusy, Location: nearby},
			{ID: "R2", UserID: "u-resp-2", Status: domain.ResponderAvailable, Location: farAway},
			{ID: "R3", UserID: "u-shared", Status: domain.ResponderAvailable, Location: nearby2},
		}}
		municipalities := &mocks.MockMunicipalityRepository{Municipalities: []domain.Municipality{
			{ID: "M1", UserID: "u-muni-1", Name: "North"},
			{ID: "M2", UserID: "u-muni-2", Name: "South"},
		}}
		f := NewNotificationFanout(residents, responders, municipalities, notifications, 10000, discardLogger(), nil)
		f.now = fixedClock
		return f
	}

	t.Run("Targets nearby residents and responders plus all municipalities", func(t *testing.T) {
		repo := &mocks.MockNotificationRepository{Fires: knownFires("F1")}
		f := newFanout(repo)

		if err := f.Handle(context.Background(), encodeMessage(t, predicted)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got := map[string]domain.Role{}
		for _, n := range repo.Snapshot() {
			if _, dup := got[n.UserID]; dup {
				t.Errorf("user %s notified twice", n.UserID)
			}
			got[n.UserID] = n.TargetRole
			if n.Status != domain.NotificationSent {
				t.Errorf("status = %s, want Sent", n.Status)
			}
			if !n.ExpiresAt.Equal(fixedNow.Add(domain.RiskNotificationTTL)) {
				t.Errorf("expires at %v", n.ExpiresAt)
			}
			if n.FireID == nil || *n.FireID != "F1" {
				t.Errorf("fire id = %v", n.FireID)
			}
		}
		want := map[string]domain.Role{
			"u-res-1":  domain.RoleResident,
			"u-shared": domain.RoleResident,
			"u-resp-1": domain.RoleResponder,
			"u-muni-1": domain.RoleMunicipality,
			"u-muni-2": domain.RoleMunicipality,
		}
		if len(got) != len(want) {
			t.Fatalf("notified %v, want %v", got, want)
		}
		for user, role := range want {
			if got[user] != role {
				t.Errorf("user %s role = %s, want %s", user, got[user], role)
			}
		}
	})

	t.Run("Prediction without fire", func(t *testing.T) {
		repo := &mocks.MockNotificationRepository{}
		f := newFanout(repo)
		p := &events.FireRiskPredicted{ZoneLocation: fireSiteW, RiskLevel: "0.4"}

		res, err := f.HandleRiskPredicted(context.Background(), decodeRisk(t, p))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Succeeded != 5 {
			t.Errorf("unexpected batch result %s", res.String())
		}
	})

	t.Run("Per-user failures are swallowed", func(t *testing.T) {
		repo := &mocks.MockNotificationRepository{CreateErr: errors.New("insert failed")}
		f := newFanout(repo)

		if err := f.Handle(context.Background(), encodeMessage(t, predicted)); err != nil {
			t.Fatalf("expected message to be acknowledged, got %v", err)
		}
		if repo.Calls != 5 {
			t.Errorf("expected 5 create attempts, got %d", repo.Calls)
		}
	})

	t.Run("Query failure is returned", func(t *testing.T) {
		repo := &mocks.MockNotificationRepository{}
		f := newFanout(repo)
		f.municipalities = &mocks.MockMunicipalityRepository{Err: errors.New("connection reset")}

		if err := f.Handle(context.Background(), encodeMessage(t, predicted)); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if repo.Calls != 0 {
			t.Errorf("expected no notifications before all queries succeed, got %d", repo.Calls)
		}
	})
}

func decodeRisk(t *testing.T, p *events.FireRiskPredicted) *events.FireRiskPredicted {
	t.Helper()
	msg := encodeMessage(t, p)
	decoded, err := events.Decode(msg.Subject, msg.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded.(*events.FireRiskPredicted)
}

func TestAssignmentFanout(t *testing.T) {
	responders := &mocks.MockResponderRepository{Responders: []domain.Responder{
		{ID: "R1", UserID: "u-r1", Status: domain.ResponderBusy, Location: nearby},
	}}
	residents := &mocks.MockResidentRepository{Residents: []domain.Resident{
		{ID: "res-1", UserID: "u-res-1", Location: nearby},
	}}

	newFanout := func(fires *mocks.MockFireRepository, eventBus *mocks.MemoryBus) (*AssignmentFanout, *mocks.MockNotificationRepository, *mocks.MockAlertRepository) {
		notifications := &mocks.MockNotificationRepository{Fires: fires}
		alerts := &mocks.MockAlertRepository{Fires: fires}
		f := NewAssignmentFanout(responders, residents, notifications, alerts, NewPublisher(eventBus, discardLogger()), 10000, discardLogger(), nil)
		f.now = fixedClock
		return f, notifications, alerts
	}

	t.Run("Assignment notifies the responder", func(t *testing.T) {
		f, notifications, _ := newFanout(knownFires("F1"), mocks.NewMemoryBus())
		e := &events.AssignmentCreated{AssignmentID: "A1", FireID: "F1", ResponderID: "R1"}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := notifications.Snapshot()
		if len(got) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(got))
		}
		n := got[0]
		if n.UserID != "u-r1" || n.TargetRole != domain.RoleResponder || n.Status != domain.NotificationSent {
			t.Errorf("unexpected notification %+v", n)
		}
		if !strings.Contains(n.Message, "F1") || !strings.Contains(n.Message, "A1") {
			t.Errorf("message %q missing ids", n.Message)
		}
		if !n.ExpiresAt.Equal(fixedNow.Add(domain.AssignmentNotificationTTL)) {
			t.Errorf("expires at %v", n.ExpiresAt)
		}
	})

	t.Run("Unknown responder is acknowledged and skipped", func(t *testing.T) {
		f, notifications, _ := newFanout(knownFires("F1"), mocks.NewMemoryBus())
		e := &events.AssignmentCreated{AssignmentID: "A2", FireID: "F1", ResponderID: "R404"}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err != nil {
			t.Fatalf("expected message to be acknowledged, got %v", err)
		}
		if n := len(notifications.Snapshot()); n != 0 {
			t.Errorf("expected no notifications, got %d", n)
		}
	})

	t.Run("Responder lookup failure is retried", func(t *testing.T) {
		notifications := &mocks.MockNotificationRepository{}
		f := NewAssignmentFanout(&mocks.MockResponderRepository{GetErr: errors.New("timeout")}, residents, notifications,
			&mocks.MockAlertRepository{}, NewPublisher(mocks.NewMemoryBus(), discardLogger()), 10000, discardLogger(), nil)
		e := &events.AssignmentCreated{AssignmentID: "A3", FireID: "F1", ResponderID: "R1"}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Spread reaching residents alerts and republishes", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		f, _, alerts := newFanout(knownFires("F1"), bus)
		e := &events.FireSpread{FireID: "F1", FireLocation: "POLYGON((-122.42 37.69, -122.38 37.69, -122.38 37.72, -122.42 37.72, -122.42 37.69))", FireSeverityLevel: 4}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := alerts.Snapshot()
		if len(got) != 1 || got[0].TargetRole != domain.RoleResident || got[0].AlertType != domain.AlertTypeFire {
			t.Fatalf("unexpected alerts %+v", got)
		}
		if n := len(bus.Published(domain.SubjectAlertCreated)); n != 1 {
			t.Errorf("expected 1 alert.created, got %d", n)
		}
	})

	t.Run("Spread reaching nobody is a no-op", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		f, _, alerts := newFanout(knownFires("F1"), bus)
		e := &events.FireSpread{FireID: "F1", FireLocation: "POINT(-100 40)", FireSeverityLevel: 2}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(alerts.Snapshot()) != 0 || len(bus.Published(domain.SubjectAlertCreated)) != 0 {
			t.Error("expected no alerts and no publishes")
		}
	})

	t.Run("Spread publish failure is retried", func(t *testing.T) {
		bus := mocks.NewMemoryBus()
		bus.PublishErr = errors.New("bus unreachable")
		f, _, _ := newFanout(knownFires("F1"), bus)
		e := &events.FireSpread{FireID: "F1", FireLocation: fireSiteW, FireSeverityLevel: 4}

		if err := f.Handle(context.Background(), encodeMessage(t, e)); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}
