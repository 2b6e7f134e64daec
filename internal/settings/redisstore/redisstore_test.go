package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-fxgraph/internal/settings"
)

func newGroup(t *testing.T) (*settings.Group, *settings.Store) {
	t.Helper()

	schema := settings.MustSchema("pipeline",
		settings.Key{Name: "plugins", Kind: settings.KindStrv, Default: []string{"compressor", "limiter"}},
		settings.Key{Name: "gain", Kind: settings.KindDouble, Default: 0.0, Min: -36, Max: 36},
		settings.Key{Name: "bypass", Kind: settings.KindBool, Default: false},
	)
	store := settings.New(schema)

	g, err := settings.NewGroup(store)
	require.NoError(t, err)

	return g, store
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "://bad", time.Millisecond)
	require.Error(t, err)
}

func TestMirrorKeys(t *testing.T) {
	g, _ := newGroup(t)
	m := New(nil, "fx", g, zerolog.Nop())

	assert.Equal(t, "fx:changed", m.Channel())
	assert.Equal(t, "fx:pipeline:plugins", m.key("pipeline", "plugins"))
}

func TestMirrorRoundTrip(t *testing.T) {
	url := os.Getenv("FXGRAPH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FXGRAPH_TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, url, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	prefix := "fxgraph-test-" + time.Now().Format("150405.000000")

	srcGroup, src := newGroup(t)
	require.NoError(t, src.SetStrv("plugins", []string{"limiter", "compressor"}))
	require.NoError(t, src.SetDouble("gain", -6))

	require.NoError(t, New(client, prefix, srcGroup, zerolog.Nop()).Push(ctx))

	dstGroup, dst := newGroup(t)

	var changed []string
	dst.ConnectAny(func(k string) { changed = append(changed, k) })

	require.NoError(t, New(client, prefix, dstGroup, zerolog.Nop()).Pull(ctx))

	order, _ := dst.GetStrv("plugins")
	assert.Equal(t, []string{"limiter", "compressor"}, order)

	gain, _ := dst.GetDouble("gain")
	assert.InDelta(t, -6.0, gain, 0)
	assert.ElementsMatch(t, []string{"plugins", "gain"}, changed)
}
