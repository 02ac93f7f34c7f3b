package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantSize   int
	}{
		{
			name:       "implicit ok",
			write:      func(w http.ResponseWriter) { _, _ = w.Write([]byte("hello")) },
			wantStatus: http.StatusOK,
			wantSize:   5,
		},
		{
			name: "explicit status",
			write: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte("{}"))
				_, _ = w.Write([]byte("\n"))
			},
			wantStatus: http.StatusConflict,
			wantSize:   3,
		},
		{
			name:       "no body",
			write:      func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) },
			wantStatus: http.StatusNoContent,
			wantSize:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := NewResponseWriter(rec)
			tt.write(rw)

			assert.Equal(t, tt.wantStatus, rw.GetStatusCode())
			assert.Equal(t, tt.wantSize, rw.GetBodySize())
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, rec, rw.Unwrap())
		})
	}
}
