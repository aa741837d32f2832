package app_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/app"
	"collabhub/internal/config"
	"collabhub/internal/process"
)

func TestOpenUsesDefaultsWithoutConfigFile(t *testing.T) {
	a, err := app.Open(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "127.0.0.1:8000", a.Config.Server.Addr)
	_, err = a.Engine.CreateOrg(context.Background(), "Org A", true, nil)
	require.NoError(t, err)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("server:\n  addr: 0.0.0.0:9000\nmetrics:\n  top_n: 5\n"), 0o644))

	a, err := app.Open(context.Background(), dir, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "0.0.0.0:9000", a.Config.Server.Addr)
	assert.Equal(t, 5, a.Config.Metrics.TopN)
	assert.Equal(t, 30*time.Minute, a.Config.Auth.TokenTTL)
}

func TestOpenWiresProcessHook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("process:\n  hook_url: http://bpm.local/hooks\n  secret: s\n"), 0o644))

	a, err := app.Open(context.Background(), dir, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Engine.Process)
	hook, ok := a.Engine.Process.(*process.Webhook)
	require.True(t, ok)
	assert.Equal(t, "http://bpm.local/hooks", hook.URL)
	assert.Equal(t, 5*time.Second, hook.Client.Timeout)

	plain, err := app.Open(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	defer plain.Close()
	assert.Nil(t, plain.Engine.Process)
}

func TestAuthConfigRequiresSecrets(t *testing.T) {
	a, err := app.Open(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.AuthConfig(app.Secrets{})
	assert.Error(t, err)
	_, err = a.AuthConfig(app.Secrets{Local: "l"})
	assert.Error(t, err)

	cfg, err := a.AuthConfig(app.Secrets{Local: "l", Cloud: "c"})
	require.NoError(t, err)
	assert.Nil(t, cfg.CloudClient)

	a.Config.Cloud.BaseURL = "https://cloud.example.org"
	cfg, err = a.AuthConfig(app.Secrets{Local: "l"})
	require.NoError(t, err)
	require.NotNil(t, cfg.CloudClient)
	assert.Equal(t, 10*time.Second, cfg.CloudClient.Timeout)

	srv, err := a.HTTPServer(app.Secrets{Local: "l"})
	require.NoError(t, err)
	assert.Equal(t, a.Config.Server.Addr, srv.Addr)
}
