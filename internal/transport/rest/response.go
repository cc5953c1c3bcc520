package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"pawedaran/internal/domain"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorValidation(w http.ResponseWriter, ve *ValidationError) {
	Response(w, ve.Message, map[string]string{"field": ve.Field}, 400, "error", http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorForbidden(w http.ResponseWriter, message string) {
	Error(w, message, 403, http.StatusForbidden)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorConflict(w http.ResponseWriter, message string) {
	Error(w, message, 409, http.StatusConflict)
}

func ErrorUnprocessable(w http.ResponseWriter, message string) {
	Error(w, message, 422, http.StatusUnprocessableEntity)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

// writeServiceError maps domain failures to status codes. Anything unrecognised is logged
// under op and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		ErrorValidation(w, ve)
	case errors.Is(err, domain.ErrInvalidAmount):
		ErrorUnprocessable(w, domain.ErrInvalidAmount.Error())
	case errors.Is(err, domain.ErrDebtNotFound):
		ErrorNotFound(w, domain.ErrDebtNotFound.Error())
	case errors.Is(err, domain.ErrPromoNotFound):
		ErrorNotFound(w, domain.ErrPromoNotFound.Error())
	case errors.Is(err, domain.ErrExportNotFound):
		ErrorNotFound(w, domain.ErrExportNotFound.Error())
	case errors.Is(err, domain.ErrForbidden):
		ErrorForbidden(w, domain.ErrForbidden.Error())
	case errors.Is(err, domain.ErrExceedsRemaining):
		ErrorConflict(w, domain.ErrExceedsRemaining.Error())
	case errors.Is(err, domain.ErrDuplicatePromo):
		ErrorConflict(w, domain.ErrDuplicatePromo.Error())
	case errors.Is(err, domain.ErrPromoUsageLimit):
		ErrorConflict(w, domain.ErrPromoUsageLimit.Error())
	default:
		log.Printf("[HTTP] %s error: %v", op, err)
		ErrorInternal(w, "internal server error")
	}
}
