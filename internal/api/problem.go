package api

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

var problemTypes = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusNotFound:            "not-found",
	http.StatusMethodNotAllowed:    "method-not-allowed",
	http.StatusConflict:            "conflict",
	http.StatusInternalServerError: "internal-error",
	http.StatusBadGateway:          "upstream-error",
	http.StatusServiceUnavailable:  "service-unavailable",
}

const problemBase = "urn:soulverse:problem:"

// WriteProblem writes an application/problem+json response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	slug, ok := problemTypes[status]
	if !ok {
		slug = "unknown"
	}
	p := Problem{
		Type:     problemBase + slug,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
