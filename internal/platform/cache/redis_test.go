package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	client2, err := New(context.Background(), "redis://"+mr.Addr()+"/2")
	require.NoError(t, err)
	defer client2.Close()
	assert.Equal(t, 2, client2.Options().DB)
}

func TestParseAddrRejectsEmpty(t *testing.T) {
	_, err := parseAddr("  ")
	require.Error(t, err)
}
