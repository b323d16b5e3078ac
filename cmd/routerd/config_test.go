package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
threads: 2
control:
  network: unix
  address: /tmp/routerd.sock
metrics:
  address: 127.0.0.1:9100
elements:
  - name: src
    class: Source
    args: ["COUNT", "10"]
  - name: dst
    class: Discard
connections:
  - from: src
    to: dst
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigParsesElementsAndConnectionsByName(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, "unix", cfg.Control.Network)
	assert.Equal(t, "/tmp/routerd.sock", cfg.Control.Address)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
	require.Len(t, cfg.Elements, 2)
	assert.Equal(t, "Source", cfg.Elements[0].Class)
	assert.Equal(t, []string{"COUNT", "10"}, cfg.Elements[0].Args)
	require.Len(t, cfg.Links, 1)
	assert.Equal(t, "src", cfg.Links[0].From)
	assert.Equal(t, "dst", cfg.Links[0].To)
}

func TestLoadConfigDefaultsThreadsAndControlNetwork(t *testing.T) {
	path := writeTemp(t, "elements:\n  - name: only\n    class: Discard\n")
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Threads)
	assert.Equal(t, "tcp", cfg.Control.Network)
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuildRouterResolvesNamedConnections(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	r, err := buildRouter(cfg, builtinRegistry())
	require.NoError(t, err)
	require.NoError(t, r.Activate(false))

	assert.Len(t, r.Elements(), 2)
	require.Len(t, r.Connections(), 1)
	assert.Equal(t, 0, r.Connections()[0].FromElement)
	assert.Equal(t, 1, r.Connections()[0].ToElement)
}

func TestBuildRouterUnknownElementNameInConnectionErrors(t *testing.T) {
	cfg := &fileConfig{
		Elements: []elementConfig{{Name: "a", Class: "Discard"}},
		Links:    []linkConfig{{From: "a", To: "ghost"}},
	}
	_, err := buildRouter(cfg, builtinRegistry())
	assert.Error(t, err)
}

func TestBuildRouterDuplicateElementNameErrors(t *testing.T) {
	cfg := &fileConfig{
		Elements: []elementConfig{
			{Name: "a", Class: "Discard"},
			{Name: "a", Class: "Discard"},
		},
	}
	_, err := buildRouter(cfg, builtinRegistry())
	assert.Error(t, err)
}
