package server

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.HTTPAddr = "127.0.0.1:0"
	c.GRPCAddr = "127.0.0.1:0"
	c.WorkDir = t.TempDir()
	return c
}

func TestNewApp_RunStopsOnCancel(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(t), logging.Nop())
	require.NoError(t, err)
	defer app.Close()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- app.Run(runCtx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestNewApp_RequiresSecret(t *testing.T) {
	c := testConfig(t)
	c.JWTSecrets = " , "
	_, err := NewApp(context.Background(), c, logging.Nop())
	require.Error(t, err)
}

func TestRun_ReturnsServerError(t *testing.T) {
	c := testConfig(t)
	c.HTTPAddr = "127.0.0.1:99999"
	app, err := NewApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	defer app.Close()

	require.Error(t, app.Run(context.Background()))
}
