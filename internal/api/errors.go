package api

import (
	"errors"
	"net/http"

	"uniloader/internal/services"
)

const (
	MessageURLRequired        = "URL required"
	MessageKindRequired       = "mediaKind required"
	MessageKindInvalid        = "mediaKind must be video or audio"
	MessageInvalidInput       = "Invalid request."
	MessageConversionFailed   = "Media conversion failed."
	MessageVariantUnavailable = "Requested quality is no longer available."
	MessageNotFound           = "File expired or not found."
	MessageExtractionFailed   = "URL not supported or content not found."
	MessageInternal           = "Internal server error."
)

// userMessenger is implemented by errors carrying their own caller-safe text.
type userMessenger interface {
	UserMessage() string
}

// StatusCode maps an error onto the HTTP status returned to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the short message shown to callers for err. Raw tool
// output never reaches this text.
func UserMessage(err error) string {
	var messenger userMessenger
	if errors.As(err, &messenger) {
		if msg := messenger.UserMessage(); msg != "" {
			return msg
		}
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, services.ErrValidation):
		return MessageInvalidInput
	case errors.Is(err, services.ErrNotFound):
		return MessageNotFound
	case errors.Is(err, services.ErrVariantUnavailable):
		return MessageVariantUnavailable
	case errors.Is(err, services.ErrConversion):
		return MessageConversionFailed
	case errors.Is(err, services.ErrExtraction):
		return MessageExtractionFailed
	default:
		return MessageInternal
	}
}

// ErrorPayload builds the response body for err.
func ErrorPayload(err error) ErrorResponse {
	return ErrorResponse{Error: UserMessage(err), Code: services.Kind(err)}
}

// validationError carries a fixed caller message.
type validationError struct {
	message string
}

func (e *validationError) Error() string {
	return services.Wrap(services.ErrValidation, "api", "", e.message, nil).Error()
}

func (e *validationError) Unwrap() error { return services.ErrValidation }

func (e *validationError) UserMessage() string { return e.message }

func invalid(message string) error { return &validationError{message: message} }
