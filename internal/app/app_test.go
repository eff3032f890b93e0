package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/coinstats/internal/cache/memory"
	"github.com/alanyoungcy/coinstats/internal/config"
	"github.com/alanyoungcy/coinstats/internal/domain"
	memstore "github.com/alanyoungcy/coinstats/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireLocalMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeLocal

	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memstore.SnapshotStore{}, deps.Store)
	assert.IsType(t, &memstore.ArchiveLog{}, deps.ArchiveLog)
	assert.IsType(t, &memcache.SignalBus{}, deps.Bus)
	assert.IsType(t, &memcache.LatestCache{}, deps.Cache)
	assert.Nil(t, deps.Locks)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.Archiver)
	assert.NotNil(t, deps.Provider)
	assert.Empty(t, deps.Checks)
}

func TestInProcessCache(t *testing.T) {
	cases := []struct {
		mode    string
		polling bool
		want    bool
	}{
		{config.ModeServer, true, false},
		{config.ModeFull, true, true},
		{config.ModeFull, false, false},
		{config.ModeLocal, true, true},
		{config.ModePoller, true, true},
	}
	for _, tc := range cases {
		cfg := config.Defaults()
		cfg.Mode = tc.mode
		cfg.Poller.Enabled = tc.polling

		got := inProcessCache(&cfg)
		if tc.want {
			assert.IsType(t, &memcache.LatestCache{}, got, "mode=%s polling=%v", tc.mode, tc.polling)
		} else {
			assert.Nil(t, got, "mode=%s polling=%v", tc.mode, tc.polling)
		}
	}
}

func TestWireRejectsUnknownProviderAsset(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeLocal
	cfg.Provider.ProviderIDs = map[string]string{"dogecoin": "dogecoin"}

	_, _, err := Wire(context.Background(), &cfg, quietLogger())
	require.ErrorIs(t, err, domain.ErrUnknownAsset)
}

func TestProviderIDs(t *testing.T) {
	ids, err := providerIDs(map[string]string{"MATIC": "polygon-ecosystem-token"})
	require.NoError(t, err)
	assert.Equal(t, map[domain.Asset]string{domain.AssetMatic: "polygon-ecosystem-token"}, ids)

	ids, err = providerIDs(nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestBuildOrchestrator(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeLocal
	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	a := New(&cfg, quietLogger())
	assert.NotNil(t, a.buildOrchestrator(deps))

	cfg.Poller.Enabled = false
	cfg.Archive.Enabled = true // no archiver wired, so the job is dropped
	assert.Nil(t, a.buildOrchestrator(deps))
}

func TestPollerModeWithoutJobs(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeLocal
	cfg.Poller.Enabled = false
	deps, cleanup, err := Wire(context.Background(), &cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	err = New(&cfg, quietLogger()).PollerMode(context.Background(), deps)
	require.Error(t, err)
}
