package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagexceptions/src/apperr"
	"tagexceptions/src/auth"
	"tagexceptions/src/dispatcher"
	"tagexceptions/src/model"
)

type stubDispatcher struct {
	raw  string
	resp dispatcher.Response
}

func (s *stubDispatcher) Handle(_ context.Context, raw []byte) dispatcher.Response {
	s.raw = string(raw)
	return s.resp
}

type stubHistorian struct {
	resourceID string
	recs       []model.TaggingException
	err        error
}

func (s *stubHistorian) History(_ context.Context, resourceID string) ([]model.TaggingException, error) {
	s.resourceID = resourceID
	return s.recs, s.err
}

func TestInvokeHandlerRelaysStatusAndBody(t *testing.T) {
	d := &stubDispatcher{resp: dispatcher.Response{
		StatusCode: http.StatusBadRequest,
		Body:       dispatcher.Body{Error: "Unknown action"},
	}}

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"action":"nope"}`))
	rr := httptest.NewRecorder()
	InvokeHandler(d).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Unknown action"}`, rr.Body.String())
	assert.Equal(t, `{"action":"nope"}`, d.raw)
}

func TestCreateExceptionHandler(t *testing.T) {
	t.Run("builds a create event", func(t *testing.T) {
		d := &stubDispatcher{resp: dispatcher.Response{StatusCode: http.StatusOK, Body: dispatcher.Body{Message: "Exception created"}}}

		body := `{"resource_arn":"r1","reason":"migration","ttl":"72h","requested_by":"ops"}`
		req := httptest.NewRequest(http.MethodPost, "/exceptions", strings.NewReader(body))
		rr := httptest.NewRecorder()
		CreateExceptionHandler(d).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"action":"create_exception","resource_arn":"r1","reason":"migration","ttl":"72h","requested_by":"ops"}`, d.raw)
	})

	t.Run("falls back to the gateway requester", func(t *testing.T) {
		d := &stubDispatcher{resp: dispatcher.Response{StatusCode: http.StatusOK}}

		req := httptest.NewRequest(http.MethodPost, "/exceptions", strings.NewReader(`{"resource_arn":"r1","reason":"migration"}`))
		req = req.WithContext(auth.WithRequester(req.Context(), "platform-team"))
		rr := httptest.NewRecorder()
		CreateExceptionHandler(d).ServeHTTP(rr, req)

		assert.Contains(t, d.raw, `"requested_by":"platform-team"`)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		d := &stubDispatcher{}

		req := httptest.NewRequest(http.MethodPost, "/exceptions", strings.NewReader(`{"resource_arn":"r1","action":"cleanup_expired"}`))
		rr := httptest.NewRecorder()
		CreateExceptionHandler(d).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, d.raw)
	})
}

func TestRevokeExceptionHandler(t *testing.T) {
	d := &stubDispatcher{resp: dispatcher.Response{StatusCode: http.StatusNotFound, Body: dispatcher.Body{Error: "no active exception for resource"}}}

	req := httptest.NewRequest(http.MethodPost, "/exceptions/revoke", strings.NewReader(`{"resource_arn":"r1","reason":"fixed"}`))
	rr := httptest.NewRecorder()
	RevokeExceptionHandler(d).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"action":"revoke_exception","resource_arn":"r1","reason":"fixed"}`, d.raw)
}

func TestExceptionHistoryHandler(t *testing.T) {
	t.Run("lists records", func(t *testing.T) {
		h := &stubHistorian{recs: []model.TaggingException{{ID: 2, ResourceID: "r1", Status: model.ExceptionStatusActive}}}

		req := httptest.NewRequest(http.MethodGet, "/exceptions?resource_arn=r1", nil)
		rr := httptest.NewRecorder()
		ExceptionHistoryHandler(h).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "r1", h.resourceID)
		assert.Contains(t, rr.Body.String(), `"resource_id":"r1"`)
	})

	t.Run("validation error", func(t *testing.T) {
		h := &stubHistorian{err: apperr.Validation("exception_history", "resource_arn is required")}

		req := httptest.NewRequest(http.MethodGet, "/exceptions", nil)
		rr := httptest.NewRecorder()
		ExceptionHistoryHandler(h).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"resource_arn is required"}`, rr.Body.String())
	})

	t.Run("store error hides details", func(t *testing.T) {
		h := &stubHistorian{err: apperr.StoreUnavailable("exception_history", errors.New("dial tcp 10.0.0.1:5432"))}

		req := httptest.NewRequest(http.MethodGet, "/exceptions?resource_arn=r1", nil)
		rr := httptest.NewRecorder()
		ExceptionHistoryHandler(h).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "10.0.0.1")
		assert.Contains(t, rr.Body.String(), `"retryable":true`)
	})
}
