package service

import (
	"context"
	"math"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/repository"
)

// NotificationService reads what the store-backed sinks have recorded.
type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, error)
	GetAuditTrail(ctx context.Context, userID int32) ([]domain.AuditEntry, error)
}

type notificationService struct {
	noteRepo  repository.NotificationRepository
	auditRepo repository.AuditRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository, auditRepo repository.AuditRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo, auditRepo: auditRepo}
}

// GetNotifications returns one page, newest first. Pages start at 1.
func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	// Pages beyond the int32 offset range are past the end of any inbox.
	offset := int64(page-1) * int64(pageSize)
	if offset > math.MaxInt32 {
		offset = math.MaxInt32
	}
	return s.noteRepo.ListByUser(ctx, userID, pageSize, int32(offset))
}

func (s *notificationService) GetAuditTrail(ctx context.Context, userID int32) ([]domain.AuditEntry, error) {
	return s.auditRepo.ListByUser(ctx, userID)
}
