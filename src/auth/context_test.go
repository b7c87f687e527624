package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequesterMiddleware(t *testing.T) {
	var got string
	var found bool
	h := RequesterMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, found = GetRequesterFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/exceptions", nil)
	req.Header.Set(RequesterHeader, " platform-team ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, found)
	assert.Equal(t, "platform-team", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/exceptions", nil))
	assert.False(t, found)
}
