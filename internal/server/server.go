// Package server 组装中继服务器：编解码器、会话表、聊天室表、命令分发器、
// TCP 接入器，以及可选的 WebSocket 接入、运维端口与服务发现。
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/chatrelay-go/internal/admin"
	"github.com/lk2023060901/chatrelay-go/internal/chat"
	"github.com/lk2023060901/chatrelay-go/internal/discovery"
	"github.com/lk2023060901/chatrelay-go/internal/network/acceptor"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/session"
	"github.com/lk2023060901/chatrelay-go/internal/network/wsbridge"
	"github.com/lk2023060901/chatrelay-go/internal/room"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/metrics"
	"github.com/lk2023060901/chatrelay-go/pkg/util/hardware"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

const (
	roleName          = "chatrelay"
	drainPollInterval = 50 * time.Millisecond
	// frameHeaderSize 为长度头加标志位的字节数。
	frameHeaderSize   = 5
	readHeaderTimeout = 5 * time.Second
)

// Option 为 Server 的可选配置。
type Option func(*Server)

// WithPresenter 设置服务端展示输出，默认写入日志。
func WithPresenter(p chat.Presenter) Option {
	return func(s *Server) {
		s.presenter = p
	}
}

// WithDiscovery 启用 etcd 服务发现（cfg.Enabled 为 false 时忽略）。
func WithDiscovery(cfg discovery.Config) Option {
	return func(s *Server) {
		s.discoveryCfg = cfg
	}
}

// WithRegistry 使用指定的 Prometheus registry，默认为每个 Server 新建一个。
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// Server 为中继服务器。
//
// 生命周期：New --> Host（绑定端口）--> Serve（阻塞）--> Stop（可由其他协程调用）。
type Server struct {
	log.Binder

	cfg          Config
	presenter    chat.Presenter
	discoveryCfg discovery.Config
	registry     *prometheus.Registry

	codec        codec.Codec
	releaseCodec func()
	sessions     *session.BaseSessionManager
	rooms        *room.BaseRoomManager
	dispatcher   *chat.Dispatcher
	handler      *relayHandler

	acceptor  *acceptor.BaseAcceptor
	wsLn      net.Listener
	wsServer  *http.Server
	admin     *admin.Server
	announcer *discovery.Announcer

	acceptCtx    context.Context
	acceptCancel context.CancelFunc

	startedAt time.Time
	hosted    atomic.Bool
	stopping  atomic.Bool
	stopOnce  sync.Once
	stopErr   error
}

// New 根据配置创建服务器，此时尚未绑定任何端口。
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.presenter == nil {
		s.presenter = chat.NewLogPresenter()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(s.registry)
	}

	cdc, release, err := codec.NewFromConfig(cfg.codecConfig())
	if err != nil {
		return nil, errors.Wrap(err, "build codec")
	}
	s.codec = cdc
	s.releaseCodec = release

	s.sessions = session.NewBaseSessionManager()
	s.rooms = room.NewBaseRoomManager()
	s.dispatcher = chat.NewDispatcher(s.sessions, s.rooms, s.presenter, chat.Config{
		HostName:     cfg.HostName,
		MessageRate:  cfg.MessageRate,
		MessageBurst: cfg.MessageBurst,
	})
	s.handler = &relayHandler{dispatcher: s.dispatcher}
	s.acceptCtx, s.acceptCancel = context.WithCancel(context.Background())

	s.SetLogger(log.With(log.FieldComponent("server")))
	s.dispatcher.SetLogger(log.With(log.FieldComponent("dispatcher")))
	return s, nil
}

// Host 绑定 TCP 端口以及已配置的 WebSocket、运维端口。
// TCP 端口绑定失败是服务器唯一的致命错误。
func (s *Server) Host() error {
	acc, err := acceptor.NewTCPAcceptor(s.cfg.Addr, s.codec, s.sessions, acceptor.Config{
		MaxWorkers:         s.cfg.MaxWorkers,
		AcceptPollInterval: s.cfg.AcceptPollInterval,
		ReadTimeout:        s.cfg.ReadTimeout,
		Outbound: session.OutboundConfig{
			QueueSize:    s.cfg.SendQueueSize,
			WriteTimeout: s.cfg.WriteTimeout,
		},
	})
	if err != nil {
		return errors.Wrap(err, "host relay")
	}
	acc.SetLogger(log.With(log.FieldComponent("acceptor"), zap.Stringer("addr", acc.Addr())))
	s.acceptor = acc

	if s.cfg.WSAddr != "" {
		if err := s.hostWebSocket(); err != nil {
			s.closeListeners()
			return err
		}
	}
	if s.cfg.AdminAddr != "" {
		adm, err := admin.New(s.cfg.AdminAddr, s.registry)
		if err != nil {
			s.closeListeners()
			return err
		}
		s.admin = adm
	}
	if s.discoveryCfg.Enabled {
		ann, err := discovery.NewAnnouncer(s.discoveryCfg, s.record())
		if err != nil {
			s.closeListeners()
			return errors.Wrap(err, "create announcer")
		}
		s.announcer = ann
	}

	s.startedAt = time.Now()
	s.hosted.Store(true)
	s.Logger().Info("relay hosted",
		zap.Stringer("addr", s.acceptor.Addr()),
		zap.String("wsAddr", s.cfg.WSAddr),
		zap.String("adminAddr", s.cfg.AdminAddr),
		zap.String("version", Version))
	return nil
}

func (s *Server) hostWebSocket() error {
	ln, err := net.Listen("tcp", s.cfg.WSAddr)
	if err != nil {
		return errors.Wrapf(err, "listen websocket on %s", s.cfg.WSAddr)
	}
	maxFrame := s.cfg.MaxFrameSize
	if maxFrame == 0 {
		maxFrame = DefaultConfig().MaxFrameSize
	}
	bridge := wsbridge.NewHandler(s.acceptor, s.handler, wsbridge.Config{
		ReadLimit: int64(maxFrame) + frameHeaderSize,
	})
	bridge.SetLogger(log.With(log.FieldComponent("wsbridge")))
	s.wsLn = ln
	s.wsServer = &http.Server{
		Handler:           wsbridge.NewServeMux(bridge),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

func (s *Server) closeListeners() {
	if s.acceptor != nil {
		_ = s.acceptor.Close()
	}
	if s.wsLn != nil {
		_ = s.wsLn.Close()
	}
	if s.admin != nil {
		s.admin.Stop()
	}
}

func (s *Server) record() discovery.Record {
	serverID := s.cfg.ServerID
	if serverID == "" {
		host, _ := os.Hostname()
		serverID = fmt.Sprintf("%s-%d", host, s.acceptor.Addr().(*net.TCPAddr).Port)
	}
	return discovery.Record{
		ServerID:  serverID,
		Address:   s.acceptor.Addr().String(),
		HostName:  s.cfg.HostName,
		Version:   SemVersion(),
		StartedAt: time.Now(),
	}
}

// Addr 返回 TCP 监听地址，Host 之前为 nil。
func (s *Server) Addr() net.Addr {
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// WSAddr 返回 WebSocket 监听地址，未启用时为 nil。
func (s *Server) WSAddr() net.Addr {
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}

// AdminAddr 返回运维端口地址，未启用时为 nil。
func (s *Server) AdminAddr() net.Addr {
	if s.admin == nil {
		return nil
	}
	return s.admin.Addr()
}

// Registry 返回服务器指标所在的 registry。
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// SessionCount 返回当前连接数。
func (s *Server) SessionCount() int {
	return s.sessions.Count()
}

// Serve 阻塞运行接入循环与各附属服务。
//
// 行为：
//   - ctx 取消或 Stop 被调用后停止接受新连接；
//   - 接入循环会等待所有 worker 结束才返回，因此完整退出需要 Stop 断开剩余会话；
//   - 服务发现注册失败时直接返回错误。
func (s *Server) Serve(ctx context.Context) error {
	if !s.hosted.Load() {
		return merr.WrapErrServiceNotReady(roleName, "not hosted")
	}
	if s.stopping.Load() {
		return merr.WrapErrServiceStopped(roleName)
	}

	if s.announcer != nil {
		s.announcer.SetLogger(log.With(log.FieldComponent("discovery")))
		if err := s.announcer.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.acceptCancel()
		case <-s.acceptCtx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return s.acceptor.Serve(s.acceptCtx, s.handler)
	})
	if s.wsServer != nil {
		g.Go(func() error {
			if err := s.wsServer.Serve(s.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serve websocket")
			}
			return nil
		})
	}
	if s.admin != nil {
		g.Go(func() error {
			return s.admin.Serve(ctx)
		})
		s.admin.SetServing(true)
	}

	s.Logger().Info("relay serving", append(hardware.Facts(), zap.String("version", Version))...)
	err := g.Wait()
	s.Logger().Info("relay serve loop exited", zap.Error(err))
	return err
}

// Announce 以服务端名义向所有会话广播一行文本。
func (s *Server) Announce(ctx context.Context, text string) {
	s.dispatcher.Announce(ctx, text)
}

// Stop 优雅停止服务器，可重复调用，只有第一次生效。
//
// 流程：
//  1. 健康状态切换为 NOT_SERVING，向所有会话广播 shutdown；
//  2. 停止接受新连接；
//  3. 最多等待 ShutdownGrace 让客户端自行断开；
//  4. 中止剩余连接，关闭接入器、WebSocket、运维端口，撤销服务发现记录。
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	intentCtx, span := log.NewIntentContext(roleName, "stop relay")
	defer span.End()
	logger := log.Ctx(intentCtx)

	s.stopping.Store(true)
	if s.admin != nil {
		s.admin.SetServing(false)
	}
	logger.Info("relay stopping", zap.Int("sessions", s.sessions.Count()))

	_ = s.dispatcher.Shutdown(intentCtx)
	s.acceptCancel()

	if !s.waitDrained(ctx) {
		cause := merr.WrapErrServiceStopped(roleName, "shutdown grace expired")
		remaining := s.sessions.All()
		for _, sess := range remaining {
			sess.Outbound().Abort(cause)
		}
		logger.Warn("aborted remaining sessions", zap.Int("count", len(remaining)))
	}

	var errs []error
	if s.acceptor != nil {
		errs = append(errs, s.acceptor.Close())
	}
	if s.wsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := s.wsServer.Shutdown(shutdownCtx); err != nil {
			_ = s.wsServer.Close()
		}
		cancel()
	}
	if s.admin != nil {
		s.admin.Stop()
	}
	if s.announcer != nil {
		errs = append(errs, s.announcer.Stop(ctx))
	}
	s.releaseCodec()

	err := merr.Combine(errs...)
	logger.Info("relay stopped", zap.Error(err))
	return err
}

// waitDrained 等待所有会话断开，返回 false 表示超过宽限期或 ctx 结束。
func (s *Server) waitDrained(ctx context.Context) bool {
	if s.sessions.Count() == 0 {
		return true
	}
	timer := time.NewTimer(s.cfg.ShutdownGrace)
	defer timer.Stop()
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.sessions.Count() == 0 {
				return true
			}
		case <-timer.C:
			return s.sessions.Count() == 0
		case <-ctx.Done():
			return false
		}
	}
}
