package middleware

import (
	"encoding/json"
	"net/http"
)

const (
	ProblemTypeValidation  = "https://palmyra.pro/problems/validation-error"
	ProblemTypeNotFound    = "https://palmyra.pro/problems/not-found"
	ProblemTypeConflict    = "https://palmyra.pro/problems/conflict"
	ProblemTypeUpstream    = "https://palmyra.pro/problems/provisioning-failed"
	ProblemTypeTimeout     = "https://palmyra.pro/problems/timeout"
	ProblemTypeForbidden   = "https://palmyra.pro/problems/forbidden"
	ProblemTypeUnauthorize = "https://palmyra.pro/problems/unauthorized"
	ProblemTypeInternal    = "https://palmyra.pro/problems/internal-error"
)

// Problem is an RFC 7807 body.
type Problem struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// WriteProblem renders p as application/problem+json with p.Status.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
