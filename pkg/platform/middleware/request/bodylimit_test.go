package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racepass/pkg/platform/httputil"
)

func TestBodyLimit(t *testing.T) {
	const maxBytes int64 = 100

	read := func(t *testing.T, called *bool, readErr *error) http.Handler {
		return BodyLimit(maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = true
			_, *readErr = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("body at the limit passes through", func(t *testing.T) {
		var called bool
		var readErr error
		req := httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader(strings.Repeat("x", 100)))
		w := httptest.NewRecorder()
		read(t, &called, &readErr).ServeHTTP(w, req)

		assert.True(t, called)
		assert.NoError(t, readErr)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared oversize body is rejected before the handler", func(t *testing.T) {
		var called bool
		var readErr error
		req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(strings.Repeat("x", 101)))
		w := httptest.NewRecorder()
		read(t, &called, &readErr).ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var body httputil.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "request_too_large", body.Error)
	})

	t.Run("undeclared oversize body fails on read", func(t *testing.T) {
		var called bool
		var readErr error
		req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(strings.Repeat("x", 500)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		read(t, &called, &readErr).ServeHTTP(w, req)

		assert.True(t, called)
		var maxErr *http.MaxBytesError
		assert.True(t, errors.As(readErr, &maxErr))
	})

	t.Run("bodyless requests are untouched", func(t *testing.T) {
		var called bool
		var readErr error
		req := httptest.NewRequest(http.MethodGet, "/merkle/root", nil)
		w := httptest.NewRecorder()
		read(t, &called, &readErr).ServeHTTP(w, req)

		assert.True(t, called)
		assert.NoError(t, readErr)
	})
}
