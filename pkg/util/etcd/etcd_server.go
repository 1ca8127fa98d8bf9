// Package etcd 提供嵌入式 etcd 服务，用于在单进程内运行依赖 etcd 的组件及其测试。
package etcd

import (
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
	"go.etcd.io/etcd/server/v3/etcdserver/api/v3client"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
)

const defaultStartTimeout = 30 * time.Second

// EmbedConfig 为嵌入式 etcd 的启动参数。
type EmbedConfig struct {
	// DataDir 为数据目录，必填。
	DataDir string
	// LogLevel 为 etcd 自身的日志级别，空串表示 error。
	LogLevel string
	// StartTimeout 为等待服务就绪的最长时间。
	StartTimeout time.Duration
}

// EmbedServer 为一个监听在回环地址随机端口上的单节点 etcd。
type EmbedServer struct {
	etcd      *embed.Etcd
	endpoints []string
	closeOnce sync.Once
}

// StartEmbedServer 启动嵌入式 etcd 并等待其就绪。
//
// 说明：
//   - 客户端与节点间通信都监听在 127.0.0.1 的空闲端口上；
//   - 超过 StartTimeout 仍未就绪时关闭服务并返回错误。
func StartEmbedServer(c EmbedConfig) (*EmbedServer, error) {
	if c.DataDir == "" {
		return nil, errors.New("etcd: data dir is required")
	}
	if c.LogLevel == "" {
		c.LogLevel = "error"
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}

	clientURL, err := loopbackURL()
	if err != nil {
		return nil, err
	}
	peerURL, err := loopbackURL()
	if err != nil {
		return nil, err
	}

	cfg := embed.NewConfig()
	cfg.Name = "chatrelay-embed"
	cfg.Dir = c.DataDir
	cfg.LogLevel = c.LogLevel
	cfg.ListenClientUrls = []url.URL{clientURL}
	cfg.AdvertiseClientUrls = []url.URL{clientURL}
	cfg.ListenPeerUrls = []url.URL{peerURL}
	cfg.AdvertisePeerUrls = []url.URL{peerURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		log.Error("failed to start embedded etcd", zap.Error(err))
		return nil, errors.Wrap(err, "start embedded etcd")
	}

	select {
	case <-e.Server.ReadyNotify():
	case err := <-e.Err():
		e.Close()
		return nil, errors.Wrap(err, "embedded etcd failed")
	case <-time.After(c.StartTimeout):
		e.Server.Stop()
		e.Close()
		return nil, errors.Newf("embedded etcd not ready in %s", c.StartTimeout)
	}

	log.Info("embedded etcd started", zap.String("client", clientURL.String()), zap.String("data", c.DataDir))
	return &EmbedServer{
		etcd:      e,
		endpoints: []string{clientURL.String()},
	}, nil
}

// Endpoints 返回客户端访问地址。
func (s *EmbedServer) Endpoints() []string {
	return s.endpoints
}

// Client 返回直连服务端、不经过网络的 v3 客户端。
func (s *EmbedServer) Client() *clientv3.Client {
	return v3client.New(s.etcd.Server)
}

// Close 停止服务，可重复调用。
func (s *EmbedServer) Close() {
	s.closeOnce.Do(func() {
		s.etcd.Close()
	})
}

// loopbackURL 在回环地址上找一个当前空闲的端口。
func loopbackURL() (url.URL, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return url.URL{}, errors.Wrap(err, "reserve loopback port")
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		return url.URL{}, errors.Wrap(err, "release loopback port")
	}
	return url.URL{Scheme: "http", Host: addr}, nil
}
