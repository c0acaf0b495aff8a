package errorhandler

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/doguser/NickWatchBot/logger"
)

type ErrorCategory int

const (
	ValidationError ErrorCategory = iota
	DatabaseError
	SendError
	TimeoutError
	NotReadyError
	NotFoundError
	DiscordError
	NetworkError
	UnknownError
)

func (c ErrorCategory) String() string {
	switch c {
	case ValidationError:
		return "validation_failed"
	case DatabaseError:
		return "store_unavailable"
	case SendError:
		return "send_failed"
	case TimeoutError:
		return "correlation_timeout"
	case NotReadyError:
		return "upstream_not_ready"
	case NotFoundError:
		return "not_found"
	case DiscordError:
		return "discord_error"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

type CustomError struct {
	Category         ErrorCategory
	OriginalErr      error
	UserMessage      string
	AdminMessage     string
	IsUserActionable bool
}

func (e *CustomError) Error() string {
	if e.OriginalErr == nil {
		return e.AdminMessage
	}
	return e.OriginalErr.Error()
}

func (e *CustomError) Unwrap() error {
	return e.OriginalErr
}

var (
	adminNotifier   func(message string)
	adminNotifierMu sync.RWMutex
)

// SetAdminNotifier installs the callback used for non-actionable errors.
func SetAdminNotifier(fn func(message string)) {
	adminNotifierMu.Lock()
	adminNotifier = fn
	adminNotifierMu.Unlock()
}

func NotifyAdmin(message string) {
	adminNotifierMu.RLock()
	fn := adminNotifier
	adminNotifierMu.RUnlock()
	if fn == nil {
		return
	}
	fn(fmt.Sprintf("Admin Notification: %s", message))
}

func NewError(category ErrorCategory, err error, context string, userMsg string, isUserActionable bool) *CustomError {
	return &CustomError{
		Category:         category,
		OriginalErr:      err,
		UserMessage:      userMsg,
		AdminMessage:     fmt.Sprintf("%s: %v", context, err),
		IsUserActionable: isUserActionable,
	}
}

func HandleError(err error) (string, bool) {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		logger.Log.WithError(customErr.OriginalErr).
			WithField("category", customErr.Category.String()).
			WithField("userActionable", customErr.IsUserActionable).
			Error(customErr.AdminMessage)

		if !customErr.IsUserActionable {
			NotifyAdmin(fmt.Sprintf("Critical error: %s", customErr.AdminMessage))
			return "An unexpected error occurred. Our team has been notified and is working on it.", false
		}

		return customErr.UserMessage, true
	}

	logger.Log.WithError(err).Error("Unexpected error occurred")
	NotifyAdmin(fmt.Sprintf("Unexpected error: %v", err))
	return "An unexpected error occurred. Our team has been notified and is working on it.", false
}

func NewValidationError(err error, field string) *CustomError {
	return NewError(
		ValidationError,
		err,
		fmt.Sprintf("Validation error: %s", field),
		fmt.Sprintf("The %s you provided is not valid. Please check and try again.", field),
		true,
	)
}

func NewDatabaseError(err error, context string) *CustomError {
	return NewError(
		DatabaseError,
		err,
		fmt.Sprintf("Database error: %s", context),
		"We're experiencing database issues. Please try again later.",
		false,
	)
}

func NewSendError(err error, channelID string) *CustomError {
	return NewError(
		SendError,
		err,
		fmt.Sprintf("Send failed for channel %s", channelID),
		"The message could not be delivered to that channel.",
		false,
	)
}

func NewTimeoutError(err error, context string) *CustomError {
	return NewError(
		TimeoutError,
		err,
		fmt.Sprintf("Timed out: %s", context),
		"The lookup bot did not answer in time. Please try again.",
		true,
	)
}

func NewNotReadyError(err error, context string) *CustomError {
	return NewError(
		NotReadyError,
		err,
		fmt.Sprintf("Upstream not ready: %s", context),
		"The Discord client is not connected yet. Make sure the bot is logged in.",
		true,
	)
}

func NewNotFoundError(err error, what string) *CustomError {
	return NewError(
		NotFoundError,
		err,
		fmt.Sprintf("Not found: %s", what),
		fmt.Sprintf("The %s could not be found.", what),
		true,
	)
}

func NewDiscordError(err error, context string) *CustomError {
	return NewError(
		DiscordError,
		err,
		fmt.Sprintf("Discord error: %s", context),
		"We're having trouble communicating with Discord. Please try again later.",
		false,
	)
}

func NewNetworkError(err error, context string) *CustomError {
	return NewError(
		NetworkError,
		err,
		fmt.Sprintf("Network error: %s", context),
		"We're having trouble connecting to our servers. Please try again later.",
		false,
	)
}

// CategoryOf returns UnknownError for errors outside the taxonomy.
func CategoryOf(err error) ErrorCategory {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Category
	}
	return UnknownError
}

func Is(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}

func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case NotReadyError:
		return http.StatusServiceUnavailable
	case TimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
