package service

import (
	"context"
	"fmt"

	"library-lending-core/internal/domain"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/repository"
)

// NotificationSink delivers a message to a user.
type NotificationSink interface {
	Notify(ctx context.Context, userID int32, message string, attrs map[string]string) error
}

// AuditSink appends an entry to the audit trail.
type AuditSink interface {
	Record(ctx context.Context, userID int32, action string) error
}

type storeNotifier struct {
	repo repository.NotificationRepository
}

// NewStoreNotifier persists notifications to the notifications table.
func NewStoreNotifier(repo repository.NotificationRepository) NotificationSink {
	return &storeNotifier{repo: repo}
}

func (n *storeNotifier) Notify(ctx context.Context, userID int32, message string, attrs map[string]string) error {
	return n.repo.Create(ctx, &domain.Notification{
		UserID:     userID,
		Message:    message,
		Attributes: attrs,
	})
}

type storeAuditor struct {
	repo repository.AuditRepository
}

// NewStoreAuditor persists audit entries to the audit_logs table.
func NewStoreAuditor(repo repository.AuditRepository) AuditSink {
	return &storeAuditor{repo: repo}
}

func (a *storeAuditor) Record(ctx context.Context, userID int32, action string) error {
	return a.repo.Create(ctx, &domain.AuditEntry{UserID: userID, Action: action})
}

// sinks runs notifications and audit after commit. Failures are logged only.
type sinks struct {
	notifier NotificationSink
	auditor  AuditSink
}

func (s sinks) notify(ctx context.Context, userID int32, message string, attrs map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, message, attrs); err != nil {
		logger.WarnContext(ctx, "Notification failed", "user_id", userID, "error", err)
	}
}

func (s sinks) audit(ctx context.Context, userID int32, format string, args ...any) {
	if s.auditor == nil {
		return
	}
	action := fmt.Sprintf(format, args...)
	if err := s.auditor.Record(ctx, userID, action); err != nil {
		logger.WarnContext(ctx, "Audit record failed", "user_id", userID, "action", action, "error", err)
	}
}

func idAttr(id int32) string {
	return fmt.Sprintf("%d", id)
}

// bookTitle names a book for a user-facing message. A failed lookup falls back
// to the book ID rather than failing the operation.
func bookTitle(ctx context.Context, repos *repository.Repositories, bookID int32) string {
	book, err := repos.Books.GetByID(ctx, bookID)
	if err != nil {
		logger.WarnContext(ctx, "Book lookup for message failed", "bookID", bookID, "error", err)
		return fmt.Sprintf("book %d", bookID)
	}
	return book.Title
}

func copyTitle(ctx context.Context, repos *repository.Repositories, copyID int32) string {
	cp, err := repos.Copies.GetByID(ctx, copyID)
	if err != nil {
		logger.WarnContext(ctx, "Copy lookup for message failed", "copyID", copyID, "error", err)
		return fmt.Sprintf("copy %d", copyID)
	}
	return bookTitle(ctx, repos, cp.BookID)
}
