package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries an operator-facing message, a user-facing message, and
// routing metadata for the central handler.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: fmt.Sprintf("Неверный формат данных. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewStorageError wraps a failed persistence operation. Registration must
// not proceed as if it succeeded, so these surface to the user as a hard
// failure of the event.
func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("Storage error: %s", underlyingMsg),
		UserMessage: "Временная проблема, попробуйте позже",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewTelegramError wraps a failed call to the Telegram Bot API.
func NewTelegramError(cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     "Telegram API error",
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewWorkflowError reports an operation that is impossible in the user's
// current registration state.
func NewWorkflowError(msg string) *AppError {
	return &AppError{
		Code:        "E400",
		Message:     msg,
		UserMessage: "Операция невозможна в текущем состоянии",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
