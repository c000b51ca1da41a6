package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"CHF cohort"}`))
		req.Header.Set("Content-Type", "application/json")

		var p payload
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &p))
		assert.Equal(t, "CHF cohort", p.Title)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"x","bogus":1}`))
		var p payload
		assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	})

	t.Run("empty body rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))
		var p payload
		assert.EqualError(t, DecodeJSON(httptest.NewRecorder(), req, &p), "request body is empty")
	})

	t.Run("trailing object rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"a"}{"title":"b"}`))
		var p payload
		assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	})

	t.Run("wrong content type rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"x"}`))
		req.Header.Set("Content-Type", "text/html")
		var p payload
		assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &p))
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	assert.Equal(t, "10.1.2.3", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
