package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RyanBlaney/song-popularity/pkg/common"
	"github.com/RyanBlaney/song-popularity/pkg/logging"
)

var errUploadTooLarge = errors.New("upload too large")

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// StatusResponse is the body of the health endpoints
type StatusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps a pipeline error onto the HTTP status and the detail shown
// to the client. Internal failures never leak their cause.
func statusFor(err error) (int, ErrorResponse) {
	var tooLarge *http.MaxBytesError
	if errors.Is(err, errUploadTooLarge) || errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, ErrorResponse{Detail: "upload too large"}
	}

	code := common.CodeOf(err)
	switch code {
	case common.ErrCodeUnknownGenre, common.ErrCodeInvalidInput:
		return http.StatusBadRequest, ErrorResponse{Detail: err.Error(), Code: code}
	case common.ErrCodeTimeout:
		return http.StatusGatewayTimeout, ErrorResponse{Detail: "extraction timed out", Code: code}
	default:
		return http.StatusInternalServerError, ErrorResponse{Detail: "prediction failed", Code: code}
	}
}

func writeError(w http.ResponseWriter, logger logging.Logger, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Request failed", logging.Fields{"status": status})
	} else {
		logger.Warn("Request rejected", logging.Fields{"status": status, "error": err.Error()})
	}
	writeJSON(w, status, body)
}
