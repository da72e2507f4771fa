package mediaserver

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndStopProcess(t *testing.T) {
	proc, err := spawnProcess(context.Background(), "/bin/sh", []string{"-c", "sleep 5"}, zerolog.Nop())
	require.NoError(t, err)
	require.True(t, proc.running())

	require.NoError(t, proc.stop(2*time.Second))
	require.False(t, proc.running())
}

func TestSpawnInvalidBinary(t *testing.T) {
	_, err := spawnProcess(context.Background(), "/no/such/binary", nil, zerolog.Nop())
	require.Error(t, err)
}
