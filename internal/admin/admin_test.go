package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/storage/sqlite"
	"github.com/repostsleuth/sleuth/internal/types"
)

func newServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "sleuth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(New(store, zaptest.NewLogger(t)).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestMonitoredSubs(t *testing.T) {
	srv, store := newServer(t)
	ctx := context.Background()

	var empty []types.MonitoredSub
	resp := getJSON(t, srv.URL+"/monitored-subs", &empty)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	sub := types.DefaultMonitoredSub("pics")
	sub.TargetHamming = 2
	sub.TargetAnnoy = 0.1
	require.NoError(t, storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		return uow.MonitoredSubs().Add(ctx, sub)
	}))

	var subs []types.MonitoredSub
	getJSON(t, srv.URL+"/monitored-subs", &subs)
	require.Len(t, subs, 1)
	assert.Equal(t, "pics", subs[0].Name)
	assert.Equal(t, 2, subs[0].TargetHamming)
	assert.Equal(t, 180, subs[0].TargetDaysOld)
}

func TestMemeTemplates(t *testing.T) {
	srv, store := newServer(t)
	ctx := context.Background()
	require.NoError(t, storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		return uow.MemeTemplates().Add(ctx, &types.MemeTemplate{Name: "drake", TemplateURL: "https://i.imgur.com/drake.jpg", Hash: "ff00"})
	}))

	var templates []types.MemeTemplate
	resp := getJSON(t, srv.URL+"/meme-templates", &templates)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, templates, 1)
	assert.Equal(t, "drake", templates[0].Name)
}

func TestHealth(t *testing.T) {
	srv, store := newServer(t)

	resp := getJSON(t, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, store.Close())
	resp = getJSON(t, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/monitored-subs", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
}

func TestRunShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}, time.Second)
	}()
	cancel()
	assert.NoError(t, <-done)
}
