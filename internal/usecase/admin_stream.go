package usecase

import (
	"context"
	"fmt"

	"github.com/V4T54L/firewatch/internal/domain"
)

// BusAdminUseCase provides operational views and repairs over the event bus.
type BusAdminUseCase struct {
	repo domain.BusAdminRepository
}

// NewBusAdminUseCase creates a new BusAdminUseCase.
func NewBusAdminUseCase(repo domain.BusAdminRepository) *BusAdminUseCase {
	return &BusAdminUseCase{repo: repo}
}

func (uc *BusAdminUseCase) ListConsumers(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	return uc.repo.ListConsumers(ctx)
}

func (uc *BusAdminUseCase) GetPendingSummary(ctx context.Context, subject domain.Subject, consumer string) (*domain.PendingMessageSummary, error) {
	if !subject.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSubject, subject)
	}
	return uc.repo.GetPendingSummary(ctx, subject, consumer)
}

func (uc *BusAdminUseCase) GetPendingMessages(ctx context.Context, subject domain.Subject, consumer, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	if !subject.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSubject, subject)
	}
	if startID == "" {
		startID = "-"
	}
	if count <= 0 {
		count = 100
	}
	return uc.repo.GetPendingMessages(ctx, subject, consumer, startID, count)
}

func (uc *BusAdminUseCase) AcknowledgeMessages(ctx context.Context, subject domain.Subject, consumer string, messageIDs ...string) (int64, error) {
	if !subject.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownSubject, subject)
	}
	if len(messageIDs) == 0 {
		return 0, nil
	}
	return uc.repo.AcknowledgeMessages(ctx, subject, consumer, messageIDs...)
}

func (uc *BusAdminUseCase) ListDeadLetters(ctx context.Context, count int64) ([]domain.DeadLetter, error) {
	if count <= 0 {
		count = 100
	}
	return uc.repo.ListDeadLetters(ctx, count)
}

// ReplayDeadLetter republishes a dead letter to its original subject and removes it.
func (uc *BusAdminUseCase) ReplayDeadLetter(ctx context.Context, id string) (domain.PubAck, error) {
	return uc.repo.ReplayDeadLetter(ctx, id)
}
