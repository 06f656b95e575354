package notification_repo

import (
	"context"
	"time"

	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/state"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const storageField = "notification-storage"

type NotificationRepo struct {
	AppState *state.AppState
}

func NewNotificationRepo(appState *state.AppState) NotificationRepoContract {
	return &NotificationRepo{
		AppState: appState,
	}
}

// Migrate creates or updates the notifications table and its indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&entity.Notification{})
}

func (r *NotificationRepo) db(ctx context.Context) *gorm.DB {
	return r.AppState.DB.WithContext(ctx)
}

func (r *NotificationRepo) Insert(ctx context.Context, n *entity.Notification) *app_error.AppError {
	if err := r.db(ctx).Create(n).Error; err != nil {
		log.Error().Err(err).Str("userID", n.UserID).Str("notificationID", n.ID).Msg("failed to insert notification")
		return app_error.NewStorageError(storageField)
	}
	return nil
}

// FindByUser returns the newest notifications first. id breaks created_at ties.
func (r *NotificationRepo) FindByUser(ctx context.Context, userID string, limit int) ([]entity.Notification, *app_error.AppError) {
	notifications := make([]entity.Notification, 0, limit)

	err := r.db(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("failed to list notifications")
		return nil, app_error.NewStorageError(storageField)
	}

	return notifications, nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int64, *app_error.AppError) {
	var count int64

	err := r.db(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("failed to count unread notifications")
		return 0, app_error.NewStorageError(storageField)
	}

	return count, nil
}

// MarkRead only touches a row owned by userID. An owned row that was already
// read still matches and keeps its original read_at.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, *app_error.AppError) {
	result := r.db(ctx).
		Model(&entity.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{
			"read":    true,
			"read_at": gorm.Expr("COALESCE(read_at, ?)", at),
		})
	if result.Error != nil {
		log.Error().Err(result.Error).Str("userID", userID).Str("notificationID", notificationID).Msg("failed to mark notification as read")
		return false, app_error.NewStorageError(storageField)
	}

	return result.RowsAffected > 0, nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, *app_error.AppError) {
	result := r.db(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]any{
			"read":    true,
			"read_at": at,
		})
	if result.Error != nil {
		log.Error().Err(result.Error).Str("userID", userID).Msg("failed to mark all notifications as read")
		return 0, app_error.NewStorageError(storageField)
	}

	return result.RowsAffected, nil
}

func (r *NotificationRepo) Delete(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError) {
	result := r.db(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&entity.Notification{})
	if result.Error != nil {
		log.Error().Err(result.Error).Str("userID", userID).Str("notificationID", notificationID).Msg("failed to delete notification")
		return false, app_error.NewStorageError(storageField)
	}

	return result.RowsAffected > 0, nil
}
