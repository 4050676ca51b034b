package mission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
Community  = "alpha"
LatOrigin  = 43.825
ServerPort = 9000
Simulation = true
Waypoints  = [1, 2, 3]

[ProcessConfig.pDepthWatch]
AppTick   = 4
max_depth = 40.5
Label     = "guard"
Threshold = " 12.5 "

[ProcessConfig.pLogger]
AppTick = 10

[Extras]
ignored = 1
`

func TestParse(t *testing.T) {
	m, err := Parse(sample)
	require.NoError(t, err)

	t.Run("global text", func(t *testing.T) {
		v, ok := m.GetValue("community")
		assert.True(t, ok)
		assert.Equal(t, "alpha", v)

		v, ok = m.GetValue("ServerPort")
		assert.True(t, ok)
		assert.Equal(t, "9000", v)

		v, ok = m.GetValue("simulation")
		assert.True(t, ok)
		assert.Equal(t, "true", v)

		v, ok = m.GetValue("waypoints")
		assert.True(t, ok)
		assert.Equal(t, "1,2,3", v)
	})

	t.Run("global numbers", func(t *testing.T) {
		v, ok := m.GetDouble("LATORIGIN")
		assert.True(t, ok)
		assert.Equal(t, 43.825, v)

		_, ok = m.GetDouble("Community")
		assert.False(t, ok)
	})

	t.Run("tables are not global parameters", func(t *testing.T) {
		_, ok := m.GetValue("Extras")
		assert.False(t, ok)
		_, ok = m.GetValue("ProcessConfig")
		assert.False(t, ok)
	})

	t.Run("app lookups need an app name", func(t *testing.T) {
		_, ok := m.GetConfigurationParam("label")
		assert.False(t, ok)
	})

	t.Run("app lookups", func(t *testing.T) {
		m.SetAppName("PDEPTHWATCH")
		defer m.SetAppName("")

		v, ok := m.GetConfigurationDouble("max_depth")
		assert.True(t, ok)
		assert.Equal(t, 40.5, v)

		v, ok = m.GetConfigurationDouble("threshold")
		assert.True(t, ok)
		assert.Equal(t, 12.5, v)

		s, ok := m.GetConfigurationParam("label")
		assert.True(t, ok)
		assert.Equal(t, "guard", s)

		_, ok = m.GetConfigurationParam("Community")
		assert.False(t, ok)
	})

	t.Run("apps", func(t *testing.T) {
		assert.Equal(t, []string{"pdepthwatch", "plogger"}, m.Apps())
		assert.True(t, m.HasApp("pLogger"))
		tick, ok := m.AppDouble("plogger", "apptick")
		assert.True(t, ok)
		assert.Equal(t, 10.0, tick)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Path())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("Community = ")
	assert.Error(t, err)

	_, err = Parse("ProcessConfig = 3")
	assert.ErrorContains(t, err, "must be a table")

	_, err = Parse("[ProcessConfig]\npApp = 1")
	assert.ErrorContains(t, err, "must be a table")
}

func TestParse_CaseCollisions(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"global", "Food = 1\nfood = 2\n"},
		{"app parameter", "[ProcessConfig.pApp]\nMaxDepth = 1\nmaxdepth = 2\n"},
		{"app block", "[ProcessConfig.pApp]\na = 1\n[ProcessConfig.PAPP]\na = 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				_, err := Parse(tt.doc)
				require.ErrorIs(t, err, ErrDuplicateKey)
			}
		})
	}

	m, err := Parse("Food = 1\n[ProcessConfig.pApp]\nfood = 2\n")
	require.NoError(t, err)
	m.SetAppName("pApp")
	global, _ := m.GetDouble("FOOD")
	app, _ := m.GetConfigurationDouble("FOOD")
	assert.Equal(t, 1.0, global)
	assert.Equal(t, 2.0, app)
}
