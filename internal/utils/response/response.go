package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/princekumarofficial/statements-service/internal/services"
)

type Response struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(data)
}

func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errorMessages string
	for _, err := range errs {
		errorMessages += err.Field() + ": " + err.Tag() + "; "
	}

	return Response{
		Status: StatusError,
		Error:  errorMessages,
	}
}

func RequestOK(message string, data interface{}) Response {
	return Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// StatusCode maps a service error onto an HTTP status.
func StatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, services.ErrHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrNotReady), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrToolUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err with the status StatusCode picks. Unexpected
// errors are not echoed to the client.
func FromError(w http.ResponseWriter, err error) error {
	code := StatusCode(err)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return WriteJSON(w, code, ValidationError(verrs))
	case code == http.StatusInternalServerError:
		return WriteJSON(w, code, GeneralError(errors.New("internal server error")))
	default:
		return WriteJSON(w, code, GeneralError(err))
	}
}
