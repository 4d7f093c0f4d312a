package api

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	Demo          string `json:"demo"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Error         string `json:"error,omitempty"`
}
