package service

import (
	"context"

	"dissonant-backend/internal/model"
)

// Estados que cuentan como orden completada para las stats del curador.
var completionStatuses = map[string]bool{
	model.StatusDelivered:         true,
	model.StatusKept:              true,
	model.StatusReturned:          true,
	model.StatusReturnedConfirmed: true,
}

func IsCompletionStatus(status string) bool {
	return completionStatuses[status]
}

// CuratorService mantiene las stats desnormalizadas del curador en su
// documento de usuario.
type CuratorService struct {
	orders OrderRepository
	users  UserRepository
}

func NewCuratorService(orders OrderRepository, users UserRepository) *CuratorService {
	return &CuratorService{orders: orders, users: users}
}

// Refresh recalcula las stats completas desde las órdenes. Siempre desde
// cero, nunca incrementos parciales: los incrementos se desincronizan
// cuando un update se aplica dos veces o se pierde.
func (s *CuratorService) Refresh(ctx context.Context, curatorID string) error {
	orders, err := s.orders.FindByCurator(ctx, curatorID)
	if err != nil {
		return err
	}

	var stats model.CuratorStats
	var ratingSum float64

	for _, o := range orders {
		if completionStatuses[o.Status] {
			stats.OrderCount++
		}
		if o.Rating != nil {
			stats.ReviewCount++
			ratingSum += *o.Rating
		}
	}
	if stats.ReviewCount > 0 {
		stats.AverageRating = ratingSum / float64(stats.ReviewCount)
	}

	return s.users.UpdateCuratorStats(ctx, curatorID, stats)
}
