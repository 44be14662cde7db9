package pingpong

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/substrate/internal/compact"
	"github.com/metrosim/substrate/internal/kay"
)

func TestGeneratedTagsMatchRuntime(t *testing.T) {
	assert.Equal(t, kay.TagOf("Ping"), TagPing)
	assert.Equal(t, kay.TagOf("Pong"), TagPong)
}

func TestPingPongExchange(t *testing.T) {
	table := kay.NewDispatchTable()
	ids, err := RegisterDispatch(table)
	require.NoError(t, err)

	cfg := kay.DefaultConfig()
	cfg.LogLevel = "error"
	sys := kay.NewSystem(cfg, table)
	sys.Start()
	defer sys.Stop()

	ponger := &Ponger{}
	pongID, err := sys.Spawn(ids["Ponger"], ponger)
	require.NoError(t, err)

	pinger := &Pinger{}
	pingID, err := sys.Spawn(ids["Pinger"], pinger)
	require.NoError(t, err)

	for _, v := range []int64{1, 2, 3} {
		m := Ping{Value: v, From: pingID}
		require.NoError(t, sys.Send(pongID, TagPing, compact.ImageOf(&m)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	assert.Equal(t, []int64{1, 2, 3}, pinger.Received())
}
