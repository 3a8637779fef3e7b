package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/workflowd/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResources(t *testing.T) {
	doc := `kind: Route
metadata:
  name: Invoice
spec:
  group: billing
  singleton: true
---
kind: Process
spec:
  route: Invoice
  owner: 10100
  priority: 200
  state: H
  queue: true
  messages:
    - label: input
      size: 12
  properties:
    waitingOnLabel: input
`
	resources, err := decodeResources(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, resources, 2)

	assert.Equal(t, "Route", resources[0].Kind)
	assert.Equal(t, "billing", resources[0].Spec.Group)
	assert.True(t, resources[0].Spec.Singleton)

	p := resources[1].Spec
	assert.Equal(t, "Invoice", p.Route)
	assert.Equal(t, int64(10100), p.Owner)
	assert.Equal(t, types.ProcessStateHeld, p.State)
	assert.True(t, p.Queue)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "input", p.Messages[0].Label)
	assert.Equal(t, "input", p.Properties["waitingOnLabel"])
}

func TestDecodeResourcesInvalid(t *testing.T) {
	_, err := decodeResources(strings.NewReader("kind: [unclosed"))
	assert.Error(t, err)
}

func newServeFlags(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd)
	return cmd
}

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := loadServerConfig(newServeFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "/v1", cfg.BasePath)
	assert.Equal(t, 15*time.Second, cfg.StatusInterval)
	assert.Equal(t, time.Minute, cfg.Manager.TickInterval)
	assert.Equal(t, 300*time.Second, cfg.Manager.PingParkedInterval)
	assert.Equal(t, 150, cfg.Manager.QueueBatchSize)
	assert.Equal(t, int64(10000), cfg.Manager.AdminContextID)
}

func TestLoadServerConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataDir: /var/lib/workflowd
manager:
  tickInterval: 30s
  queueBatchSize: 20
log:
  level: debug
`), 0o600))
	t.Setenv("WORKFLOWD_MANAGER_ZOMBIEMISSTHRESHOLD", "5")

	cmd := newServeFlags(t)
	require.NoError(t, cmd.Flags().Set("config", path))
	require.NoError(t, cmd.Flags().Set("ping-parked-interval", "0s"))

	cfg, err := loadServerConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/workflowd", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Manager.TickInterval)
	assert.Equal(t, 20, cfg.Manager.QueueBatchSize)
	assert.Equal(t, 5, cfg.Manager.ZombieMissThreshold)
	assert.Equal(t, time.Duration(0), cfg.Manager.PingParkedInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}
