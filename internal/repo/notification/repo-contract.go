package notification_repo

import (
	"context"
	"time"

	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
)

type NotificationRepoContract interface {
	Insert(ctx context.Context, n *entity.Notification) *app_error.AppError
	FindByUser(ctx context.Context, userID string, limit int) ([]entity.Notification, *app_error.AppError)
	CountUnread(ctx context.Context, userID string) (int64, *app_error.AppError)
	MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, *app_error.AppError)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, *app_error.AppError)
	Delete(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError)
}
