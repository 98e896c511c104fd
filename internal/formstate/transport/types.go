package transport

// SessionResponse is the response for creating a session.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// KeysResponse lists the snapshot keys of a session.
type KeysResponse struct {
	SessionID string   `json:"sessionId"`
	Keys      []string `json:"keys"`
}
