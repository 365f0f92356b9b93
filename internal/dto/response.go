package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TrackEventResponse represents an accepted capture
type TrackEventResponse struct {
	Status string `json:"status"`
}

// TrackBulkEventsResponse represents the outcome of a bulk capture
type TrackBulkEventsResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// FlushResponse summarizes a forced flush
type FlushResponse struct {
	Persisted int `json:"persisted"`
	Delivered int `json:"delivered"`
	Retained  int `json:"retained"`
}

// CleanupResponse reports how many expired events were dropped
type CleanupResponse struct {
	Removed int `json:"removed"`
}
