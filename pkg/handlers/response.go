package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/partsbench/partsbench-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps a service error onto an HTTP status by its kind and
// writes the JSON error body.
func WriteServiceError(w http.ResponseWriter, err error) error {
	kind := apperrors.KindOf(err)
	return ErrorResponse(w, statusForKind(kind), string(kind), err.Error())
}

// statusForKind maps error kinds to HTTP statuses. Stock, allocation and
// transition failures are conflicts with current state, not bad requests.
func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindInsufficientStock, apperrors.KindOverAllocation, apperrors.KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
