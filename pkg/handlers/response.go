package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/logging"
)

// errorBody is the error half of the response envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteSuccess writes the {"success":true,"data":...} envelope.
func WriteSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

// WriteError maps err through the taxonomy and writes the
// {"success":false,"error":{...}} envelope. Untyped errors become an opaque
// internal_error; their text goes into details only when includeDetails is
// set (never in production).
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error, includeDetails bool) {
	code := apperrors.Code(err)
	status := apperrors.Status(err)

	body := errorBody{Code: code, Message: logging.SanitizeError(err)}
	if code == "internal_error" {
		logger.Error("request failed", zap.Error(err))
		body.Message = "internal server error"
		if includeDetails {
			body.Details = logging.SanitizeError(err)
		}
	}
	writeErrorBody(w, status, body)
}

// WriteErrorCode writes an envelope error without going through the
// taxonomy, for boundary checks like path validation.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, errorBody{Code: code, Message: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   body,
	})
}

// decodeJSONBody reads a request body into dst, rejecting malformed and
// oversized payloads.
func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(apperrors.ErrInvalidRequest, err)
	}
	return nil
}
