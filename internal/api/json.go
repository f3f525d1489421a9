package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"loadplan/internal/opt"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeEngineProblem maps engine errors onto problem responses: invalid
// input and invalid config are client errors, everything else is a 500.
func writeEngineProblem(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, opt.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), instance)
	case errors.Is(err, opt.ErrInvalidConfig):
		writeProblem(w, http.StatusBadRequest, "Invalid optimizer config", err.Error(), instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), instance)
	}
}
