package domain

// LoadProgress reports how far a bulk load has come.
// Total is 0 when the line count is unknown (resumed loads).
type LoadProgress struct {
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
}

// MessagePayload is the payload of error events
type MessagePayload struct {
	Message string `json:"message"`
}
