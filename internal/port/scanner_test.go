package port

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupyPort binds an ephemeral TCP port and returns its number. The
// listener is released via t.Cleanup.
func occupyPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	return listener.Addr().(*net.TCPAddr).Port
}

// TestIsFree verifies detection of both occupied and free ports.
func TestIsFree(t *testing.T) {
	s := NewScanner()

	busy := occupyPort(t)
	assert.False(t, s.IsFree(busy), "an occupied port must not report free")

	// Find a port that is genuinely free by binding and releasing it.
	probe, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	free := probe.Addr().(*net.TCPAddr).Port
	require.NoError(t, probe.Close())

	assert.True(t, s.IsFree(free))
}

// TestCheckFree verifies all occupied ports are reported together.
func TestCheckFree(t *testing.T) {
	s := NewScanner()

	busy1 := occupyPort(t)
	busy2 := occupyPort(t)

	err := s.CheckFree([]int{busy1, busy2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d", busy1))
	assert.Contains(t, err.Error(), fmt.Sprintf("%d", busy2))

	assert.NoError(t, s.CheckFree(nil), "no declared ports means nothing to check")
}
