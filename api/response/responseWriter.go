package response

import (
	"net/http"
)

// responseWriter records the status code and the number of bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bodySize   int
}

func NewResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader to capture status code
func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bodySize += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) GetStatusCode() int {
	return rw.statusCode
}

func (rw *responseWriter) GetBodySize() int {
	return rw.bodySize
}
