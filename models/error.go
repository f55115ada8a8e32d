package models

// ErrorMessageResponse is the body the chat API writes on failed requests,
// the shape produced by config.ErrorStatus. The response field carries the
// operator-facing reason ("userId is required", "cannot access another
// user's conversation") followed by the underlying error.
type ErrorMessageResponse struct {
	Response string `json:"response"`
}
