package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"teatrace/pkg/domain"
)

type errorBody struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// writeError maps domain error kinds onto HTTP status codes. Anything
// unrecognized is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}
	var ruleErr domain.RuleViolationError
	switch {
	case domain.IsUnauthorized(err):
		status = http.StatusForbidden
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsDuplicateBatch(err), domain.IsInvalidTransition(err):
		status = http.StatusConflict
	case domain.IsInvalidQuantity(err), domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.As(err, &ruleErr):
		status = http.StatusUnprocessableEntity
		body.Violations = ruleErr.Result.Violations
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
