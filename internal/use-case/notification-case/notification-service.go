package notification_service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fisioflow/realtime/internal/dtos/notification_dto"
	"github.com/fisioflow/realtime/internal/entity"
	app_error "github.com/fisioflow/realtime/internal/errors"
	"github.com/fisioflow/realtime/internal/queue"
	notification_repo "github.com/fisioflow/realtime/internal/repo/notification"
	"github.com/fisioflow/realtime/internal/utils"
	"github.com/fisioflow/realtime/internal/websocket"
	"github.com/fisioflow/realtime/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100

	defaultUnreadCacheTTL = 5 * time.Minute
)

type Config struct {
	UnreadCacheTTL time.Duration
	// MailEnabled turns on offline reminder emails.
	MailEnabled bool
}

type NotificationService struct {
	AppState *state.AppState
	Repo     notification_repo.NotificationRepoContract
	Hub      Pusher
	// Producer is nil when deferred jobs are unavailable.
	Producer queue.Producer
	Config   Config

	now func() time.Time
}

func NewNotificationService(appState *state.AppState, hub Pusher, producer queue.Producer, cfg Config) NotificationServiceContract {
	if cfg.UnreadCacheTTL <= 0 {
		cfg.UnreadCacheTTL = defaultUnreadCacheTTL
	}

	return &NotificationService{
		AppState: appState,
		Repo:     notification_repo.NewNotificationRepo(appState),
		Hub:      hub,
		Producer: producer,
		Config:   cfg,
		now:      time.Now,
	}
}

func UnreadCacheKey(userID string) string {
	return "notification:unread:" + userID
}

// Create persists first and pushes second. Nothing is pushed for a record that
// failed to save; an offline recipient is not an error.
func (s *NotificationService) Create(ctx context.Context, req notification_dto.CreateNotificationRequest) (*entity.Notification, *app_error.AppError) {
	if appErr := validateCreate(req); appErr != nil {
		return nil, appErr
	}

	id, err := uuid.NewV7()
	if err != nil {
		log.Error().Err(err).Msg("failed to generate notification id")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to generate notification id", "id")
	}

	var payload datatypes.JSON
	if len(req.Payload) > 0 {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, app_error.NewValidationError("payload must be a JSON object", "payload")
		}
		payload = raw
	}

	notification := &entity.Notification{
		ID:        id.String(),
		UserID:    req.UserID,
		Type:      entity.NotificationType(req.Type),
		Title:     strings.TrimSpace(req.Title),
		Message:   strings.TrimSpace(req.Message),
		Payload:   payload,
		Read:      false,
		CreatedAt: s.now().UTC(),
	}

	if appErr := s.Repo.Insert(ctx, notification); appErr != nil {
		return nil, appErr
	}
	s.invalidateUnread(ctx, notification.UserID)

	reached := 0
	if s.Hub != nil {
		reached = s.Hub.SendToUser(notification.UserID, websocket.NewMessage(websocket.EventNotification, notification))
	}

	log.Info().
		Str("notificationID", notification.ID).
		Str("userID", notification.UserID).
		Str("type", string(notification.Type)).
		Int("delivered", reached).
		Msg("notification created")

	return notification, nil
}

func validateCreate(req notification_dto.CreateNotificationRequest) *app_error.AppError {
	if strings.TrimSpace(req.UserID) == "" {
		return app_error.NewValidationError("user id is required", "user_id")
	}
	if !entity.NotificationType(req.Type).Valid() {
		return app_error.NewValidationError("invalid notification type", "type")
	}
	if strings.TrimSpace(req.Title) == "" {
		return app_error.NewValidationError("title is required", "title")
	}
	if strings.TrimSpace(req.Message) == "" {
		return app_error.NewValidationError("message is required", "message")
	}
	return nil
}

// List returns the latest notifications; limit <= 0 means the default and is
// capped at MaxListLimit.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]entity.Notification, *app_error.AppError) {
	return s.Repo.FindByUser(ctx, userID, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, *app_error.AppError) {
	cacheKey := UnreadCacheKey(userID)
	cacheable := s.AppState.Redis != nil

	var gen int64
	if cacheable {
		cached, appErr := utils.GetCacheData[int64](ctx, s.AppState.Redis, cacheKey)
		if appErr != nil {
			log.Warn().Str("userID", userID).Str("reason", appErr.Message).Msg("unread cache read failed, falling back to storage")
		} else if cached != nil {
			return *cached, nil
		}

		// read before counting so a concurrent invalidation wins
		var err error
		if gen, err = utils.CacheGeneration(ctx, s.AppState.Redis, cacheKey); err != nil {
			cacheable = false
		}
	}

	count, appErr := s.Repo.CountUnread(ctx, userID)
	if appErr != nil {
		return 0, appErr
	}

	if cacheable {
		if _, err := utils.SetCacheDataAtGeneration(ctx, s.AppState.Redis, cacheKey, &count, s.Config.UnreadCacheTTL, gen); err != nil {
			log.Warn().Err(err).Str("userID", userID).Msg("failed to cache unread count")
		}
	}

	return count, nil
}

// MarkRead reports false when the notification does not exist or belongs to
// someone else.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError) {
	ok, appErr := s.Repo.MarkRead(ctx, notificationID, userID, s.now().UTC())
	if appErr != nil {
		return false, appErr
	}
	if ok {
		s.invalidateUnread(ctx, userID)
	}
	return ok, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, *app_error.AppError) {
	updated, appErr := s.Repo.MarkAllRead(ctx, userID, s.now().UTC())
	if appErr != nil {
		return 0, appErr
	}
	s.invalidateUnread(ctx, userID)
	return updated, nil
}

func (s *NotificationService) Delete(ctx context.Context, notificationID, userID string) (bool, *app_error.AppError) {
	ok, appErr := s.Repo.Delete(ctx, notificationID, userID)
	if appErr != nil {
		return false, appErr
	}
	if ok {
		s.invalidateUnread(ctx, userID)
	}
	return ok, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.AppState.Redis == nil {
		return
	}
	if err := utils.InvalidateCacheData(ctx, s.AppState.Redis, UnreadCacheKey(userID)); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("failed to invalidate unread cache")
	}
}
