package upstream

import "fmt"

// ClientError is an upstream 4xx response. It is terminal: the request was
// understood and rejected, so retrying cannot help.
type ClientError struct {
	Status int
	Body   interface{}
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("upstream client error %d: %v", e.Status, e.Body)
}

// ServerError is an upstream 5xx response, eligible for retry.
type ServerError struct {
	Status int
	Body   interface{}
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("upstream server error %d: %v", e.Status, e.Body)
}
