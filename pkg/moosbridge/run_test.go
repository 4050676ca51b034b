package moosbridge_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/moosbridge/internal/host"
	"github.com/felixgeelhaar/moosbridge/pkg/moosbridge"
	mbtesting "github.com/felixgeelhaar/moosbridge/pkg/moosbridge/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_IterateSlotOnly(t *testing.T) {
	mission := filepath.Join(t.TempDir(), "m.toml")
	require.NoError(t, os.WriteFile(mission, []byte("[ProcessConfig.pX]\nAppTick = 200\n"), 0644))

	cfg := host.DefaultConfig()
	cfg.MaxIterations = 3
	app := host.NewApp(host.NewCommunity("alpha", nil).Join(), host.WithConfig(cfg))

	h := moosbridge.New(app)
	defer moosbridge.Delete(h)

	iterations := 0
	moosbridge.SetIterateCallback(h, func(moosbridge.Target) bool {
		iterations++
		return true
	})

	require.True(t, moosbridge.Run(h, "pX", mission))
	assert.Equal(t, 3, iterations)
	assert.Equal(t, int64(3), app.Iteration())
}

func TestHarness_StartupFailureStillConnects(t *testing.T) {
	h := mbtesting.NewHarness(&refusingApp{})
	defer h.Close()

	require.True(t, h.Start())
	_, ok := h.Base.Registered("X")
	assert.True(t, ok)
}

type refusingApp struct {
	moosbridge.BaseApp
}

func (refusingApp) OnStartUp(moosbridge.Client) bool { return false }

func (refusingApp) OnConnectToServer(c moosbridge.Client) bool {
	return c.Register("X", 0)
}
