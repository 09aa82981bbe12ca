package reportsdk

// Dispatch statuses.
const (
	StatusCached = "cached"
	StatusQueued = "queued"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// LinkResponse is returned by GET /link/{template}.
type LinkResponse struct {
	// URL is relative to the edge, e.g.
	// /generate-secure/{template}?t={sig}&exp={unix}
	URL string `json:"url"`

	// Expires is the unix time after which the link is rejected.
	Expires int64 `json:"expires"`
}

// DispatchResponse is returned by both submit routes.
type DispatchResponse struct {
	Status string `json:"status"`

	// ID is the content fingerprint; the artifact is served at /pdf/{id}.
	ID string `json:"id"`

	// AgeSeconds is set only for cached results.
	AgeSeconds *int `json:"age_seconds,omitempty"`
}

// HealthResponse is served by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks lists readiness results per dependency. Empty fields were
// not checked by the serving process.
type HealthChecks struct {
	Storage string `json:"storage,omitempty"`
	Queue   string `json:"queue,omitempty"`
	Audit   string `json:"audit,omitempty"`
}
