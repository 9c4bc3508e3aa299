package handlers

// MessageResponse is the generic success body for operations that only
// report a human-readable outcome.
type MessageResponse struct {
	Message   string `json:"message"`
	Indicator string `json:"indicator,omitempty"`
}
