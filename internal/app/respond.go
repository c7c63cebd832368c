package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/crewledger/crewledger/internal/shared"
)

// RespondJSON writes v as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// RespondError maps the shared error taxonomy onto HTTP status codes.
// Validation errors are caller-correctable (422), invalid-state conflicts
// are 409, missing entities 404. Consistency failures are bugs: they are
// logged at error level and surfaced as an opaque 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case shared.IsValidation(err):
		RespondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case shared.IsInvalidState(err):
		RespondJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, shared.ErrNotFound):
		RespondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case shared.IsConsistency(err):
		logger.Error("ledger consistency violation", slog.Any("error", err))
		RespondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	default:
		logger.Error("request failed", slog.Any("error", err))
		RespondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// DecodeJSON parses the request body into dst, returning a ValidationError
// on malformed input.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.Validationf("invalid request body: %v", err)
	}
	return nil
}
