package etcd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestEmbedServer(t *testing.T) {
	server, err := StartEmbedServer(EmbedConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer server.Close()
	require.Len(t, server.Endpoints(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	local := server.Client()
	defer local.Close()
	_, err = local.Put(ctx, "/k", "v")
	require.NoError(t, err)

	remote, err := clientv3.New(clientv3.Config{Endpoints: server.Endpoints(), DialTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer remote.Close()
	resp, err := remote.Get(ctx, "/k")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	assert.Equal(t, "v", string(resp.Kvs[0].Value))

	server.Close()
	server.Close()
}

func TestEmbedServerRequiresDataDir(t *testing.T) {
	_, err := StartEmbedServer(EmbedConfig{})
	assert.Error(t, err)
}
