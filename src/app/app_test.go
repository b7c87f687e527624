package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagexceptions/src/database"
	"tagexceptions/src/lifecycle"
	"tagexceptions/src/notifier"
	"tagexceptions/src/remediation"
	"tagexceptions/src/server"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := BuildWith(
		database.Config{Driver: database.DriverSQLite, DatabaseURLMain: ":memory:", GormLogLevel: 1},
		lifecycle.DefaultConfig(),
		notifier.Config{},
		remediation.Config{},
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBuildWiresAnInvocableManager(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	resp := a.Dispatcher.Handle(ctx, []byte(`{"action":"create_exception","resource_arn":"r1","reason":"approved"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body.Error)

	resp = a.Dispatcher.Handle(ctx, []byte(`{"action":"handle_compliance_violation","resource_arn":"r1","violation_details":{"rule":"required-tags"}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Violation handled: waived by active exception", resp.Body.Message)

	history, err := a.Manager.History(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRoutesExposeMetricsFromTheRegistry(t *testing.T) {
	a := newTestApp(t)

	srv := httptest.NewServer(server.NewRouter(a.Routes()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/exceptions", "application/json", strings.NewReader(`{"resource_arn":"r1","reason":"approved"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mfs, err := a.Registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "tagging_exceptions_created_total" {
			found = true
		}
	}
	assert.True(t, found)
}
