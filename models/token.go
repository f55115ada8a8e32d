package models

// TokenResponse is returned when a bearer token is minted
type TokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"_id"`
}

// SocketTokenResponse is returned when a realtime handshake token is minted
type SocketTokenResponse struct {
	Token string `json:"token"`
}
