package httpremote

import "encoding/json"

// rejectionResponse is the body of a 422 response to a push.
type rejectionResponse[E any] struct {
	Error   E      `json:"error"`
	Message string `json:"message,omitempty"`
}

// errorResponse is the body of every other error response.
type errorResponse struct {
	Message string `json:"message"`
}

// snapshotResponse is the body of a successful fetch.
type snapshotResponse[D any] struct {
	Entities map[string]D `json:"entities"`
}

func marshalError(message string) []byte {
	b, _ := json.Marshal(errorResponse{Message: message})
	return b
}
