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

// Dispatcher assigns the nearest available responder to a fire.
type Dispatcher struct {
	fires        domain.FireRepository
	responders   domain.ResponderRepository
	assignments  domain.FireAssignmentRepository
	publisher    *Publisher
	searchLimit  int
	queryTimeout time.Duration
	logger       *slog.Logger
	metrics      MetricsRecorder
	now          func() time.Time
	newID        func() string
}

// NewDispatcher creates a new Dispatcher. A zero queryTimeout leaves the responder query
// bounded only by the caller's context.
func NewDispatcher(
	fires domain.FireRepository,
	responders domain.ResponderRepository,
	assignments domain.FireAssignmentRepository,
	publisher *Publisher,
	searchLimit int,
	queryTimeout time.Duration,
	logger *slog.Logger,
	m MetricsRecorder,
) *Dispatcher {
	if searchLimit < 1 {
		searchLimit = 1
	}
	return &Dispatcher{
		fires:        fires,
		responders:   responders,
		assignments:  assignments,
		publisher:    publisher,
		searchLimit:  searchLimit,
		queryTimeout: queryTimeout,
		logger:       logger.With("component", "dispatcher"),
		metrics:      orNoOp(m),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// DispatchClosestResponder creates an active assignment for the available responder
// closest to the fire and announces it on assignment.created.
//
// It returns ErrFireNotFound, ErrNoResponderAvailable or ErrDispatchTimeout without creating
// anything. When the announcement fails the created assignment is returned along with the
// error.
func (d *Dispatcher) DispatchClosestResponder(ctx context.Context, fireID string) (*domain.FireAssignment, error) {
	a, outcome, err := d.dispatch(ctx, fireID)
	d.metrics.ObserveDispatch(outcome)
	return a, err
}

func (d *Dispatcher) dispatch(ctx context.Context, fireID string) (*domain.FireAssignment, string, error) {
	fire, err := d.fires.GetByID(ctx, fireID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, DispatchFireNotFound, fmt.Errorf("%w: %s", domain.ErrFireNotFound, fireID)
	}
	if err != nil {
		return nil, DispatchError, fmt.Errorf("get fire %s: %w", fireID, err)
	}

	candidates, err := d.findAvailable(ctx, fire)
	if errors.Is(err, domain.ErrDispatchTimeout) {
		return nil, DispatchTimeout, err
	}
	if err != nil {
		return nil, DispatchError, err
	}

	nearest, ok := geo.Nearest(candidates, fire.Location)
	if !ok {
		return nil, DispatchNoResponder, fmt.Errorf("%w for fire %s", domain.ErrNoResponderAvailable, fireID)
	}

	a := domain.FireAssignment{
		ID:          d.newID(),
		AssignedAt:  d.now(),
		Status:      domain.AssignmentActive,
		FireID:      fire.ID,
		ResponderID: nearest.ID,
	}
	if err := d.assignments.Create(ctx, a); err != nil {
		return nil, DispatchError, fmt.Errorf("create assignment for fire %s: %w", fireID, err)
	}

	d.logger.Info("responder assigned",
		"fire_id", fire.ID,
		"responder_id", nearest.ID,
		"assignment_id", a.ID,
		"distance_meters", nearest.DistanceMeters,
	)

	_, err = d.publisher.PublishAssignmentCreated(ctx, events.AssignmentCreated{
		AssignmentID:     a.ID,
		AssignmentStatus: a.Status,
		FireID:           a.FireID,
		ResponderID:      a.ResponderID,
		Timestamp:        a.AssignedAt,
	})
	if err != nil {
		d.logger.Error("assignment created but not announced", "assignment_id", a.ID, "error", err)
		return &a, DispatchPublishFailed, fmt.Errorf("announce assignment %s: %w", a.ID, err)
	}
	return &a, DispatchAssigned, nil
}

// findAvailable runs the bounded responder query and keeps only available responders.
func (d *Dispatcher) findAvailable(ctx context.Context, fire *domain.FireEvent) ([]geo.Candidate, error) {
	qctx := ctx
	if d.queryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, d.queryTimeout)
		defer cancel()
	}

	responders, err := d.responders.FindNearestAvailable(qctx, fire.Location, d.searchLimit)
	if err != nil {
		if ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s for fire %s", domain.ErrDispatchTimeout, d.queryTimeout, fire.ID)
		}
		return nil, fmt.Errorf("find available responders for fire %s: %w", fire.ID, err)
	}

	candidates := make([]geo.Candidate, 0, len(responders))
	for _, r := range responders {
		if r.Status != domain.ResponderAvailable {
			continue
		}
		candidates = append(candidates, geo.Candidate{ID: r.ID, Location: r.Location})
	}
	return candidates, nil
}
