package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Guizzs26/single_ballot_poll_system/internal/auth"
	"github.com/Guizzs26/single_ballot_poll_system/internal/poll"
)

// ErrorBody is the payload of every non-2xx response. Code carries the poll
// error code, or 0 for transport and infrastructure failures.
type ErrorBody struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
	Kind  string `json:"kind,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// the status line is already sent, so a failed encode can only be logged
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response",
			"event", "api_encode_failed",
			"status", status,
			"error", err.Error(),
		)
	}
}

// ErrorJSON is a shortcut for returning a message as JSON
func ErrorJSON(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// WriteError maps domain and auth errors onto HTTP statuses.
func WriteError(w http.ResponseWriter, err error) {
	var perr poll.Error
	switch {
	case errors.As(err, &perr):
		JSON(w, statusFor(perr), ErrorBody{Error: perr.Error(), Code: perr.Code(), Kind: perr.Kind()})
	case errors.Is(err, auth.ErrNotAuthorized):
		JSON(w, http.StatusUnauthorized, ErrorBody{Error: err.Error(), Kind: "unauthenticated"})
	case errors.Is(err, poll.ErrTallyOverflow):
		JSON(w, http.StatusConflict, ErrorBody{Error: err.Error(), Kind: "tally_overflow"})
	default:
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal error"})
	}
}

func statusFor(e poll.Error) int {
	switch e {
	case poll.ErrPollNotInitialized:
		return http.StatusNotFound
	case poll.ErrAlreadyVoted, poll.ErrAlreadyInitialized:
		return http.StatusConflict
	case poll.ErrInvalidOption:
		return http.StatusBadRequest
	case poll.ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
