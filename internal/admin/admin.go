// Package admin 在单个端口上同时提供 gRPC 健康检查与 HTTP 运维接口。
//
// 端口通过 cmux 按协议拆分：
//   - content-type 为 application/grpc 的 HTTP/2 连接交给 gRPC（grpc.health.v1.Health）；
//   - 其余 HTTP/1.x 连接交给 HTTP 路由：/metrics（Prometheus）与 /healthz。
package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soheilhy/cmux"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/logutil"
)

const (
	// ServiceName 为健康检查中中继服务的名称；空串表示整体状态。
	ServiceName = "chatrelay.Relay"

	readHeaderTimeout = 5 * time.Second
)

// Server 为运维端口服务。
type Server struct {
	log.Binder

	ln     net.Listener
	mux    cmux.CMux
	grpc   *grpc.Server
	http   *http.Server
	health *health.Server

	serving atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

// New 在 addr 上监听并构造运维服务，gatherer 为 /metrics 的数据来源。
func New(addr string, gatherer prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen admin on %s", addr)
	}
	return NewWithListener(ln, gatherer), nil
}

// NewWithListener 使用已有的监听器构造运维服务。
func NewWithListener(ln net.Listener, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		ln:     ln,
		mux:    cmux.New(ln),
		health: health.NewServer(),
		done:   make(chan struct{}),
	}
	s.SetLogger(log.With(log.FieldComponent("admin"), zap.String("addr", ln.Addr().String())))

	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(logutil.UnaryTraceLoggerInterceptor),
		grpc.ChainStreamInterceptor(logutil.StreamTraceLoggerInterceptor),
	)
	healthpb.RegisterHealthServer(s.grpc, s.health)

	router := http.NewServeMux()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", s.handleHealthz)
	s.http = &http.Server{Handler: router, ReadHeaderTimeout: readHeaderTimeout}

	s.SetServing(false)
	return s
}

// Addr 返回实际监听地址。
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// SetServing 切换健康状态，gRPC 与 /healthz 同步生效。
func (s *Server) SetServing(serving bool) {
	s.serving.Store(serving)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.serving.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT_SERVING\n"))
		return
	}
	_, _ = w.Write([]byte("SERVING\n"))
}

// Serve 阻塞运行，直到 ctx 结束或 Stop 被调用。
//
// 行为：
//   - Stop 之后返回 nil；
//   - 任一子服务异常退出时返回该错误。
func (s *Server) Serve(ctx context.Context) error {
	grpcL := s.mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := s.mux.Match(cmux.HTTP1Fast())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.ignoreClosed(s.grpc.Serve(grpcL))
	})
	g.Go(func() error {
		return s.ignoreClosed(s.http.Serve(httpL))
	})
	g.Go(func() error {
		return s.ignoreClosed(s.mux.Serve())
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.Stop()
		case <-s.done:
		}
		return nil
	})

	s.Logger().Info("admin server started")
	return g.Wait()
}

func (s *Server) ignoreClosed(err error) error {
	if err == nil || s.stopped.Load() ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, cmux.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) {
		return nil
	}
	return err
}

// Stop 关闭运维服务，可重复调用。
func (s *Server) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.SetServing(false)
	s.health.Shutdown()
	s.grpc.Stop()
	_ = s.http.Close()
	s.mux.Close()
	_ = s.ln.Close()
	s.Logger().Info("admin server stopped")
}
