package requests

import (
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// GetRequestId returns the caller-supplied request ID if present, otherwise mints a
// fresh one and stamps it back onto the request so downstream handlers agree on it.
func GetRequestId(req *http.Request) string {
	requestID := req.Header.Get(requestIDHeader)
	if requestID != "" {
		return requestID
	}
	requestID = uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	return requestID
}
