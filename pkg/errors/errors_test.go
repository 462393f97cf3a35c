package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not fitted", ErrNotFitted, http.StatusServiceUnavailable},
		{"wrapped not fitted", fmt.Errorf("search: %w", ErrNotFitted), http.StatusServiceUnavailable},
		{"empty corpus", ErrEmptyCorpus, http.StatusServiceUnavailable},
		{"invalid input", fmt.Errorf("topN: %w", ErrInvalidInput), http.StatusBadRequest},
		{"dimension mismatch", ErrDimensionMismatch, http.StatusInternalServerError},
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrNotFitted, http.StatusServiceUnavailable, "version %d", 0)
	assert.True(t, Is(err, ErrNotFitted))
	assert.Equal(t, "engine not fitted: version 0", err.Error())
}
