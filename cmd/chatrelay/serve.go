package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/discovery"
	"github.com/lk2023060901/chatrelay-go/internal/server"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/conc"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

// stopSlack 为 Stop 在宽限期之外用于关闭各组件的额外时间。
const stopSlack = 10 * time.Second

var serveFlagBindings = map[string]string{
	"addr":           "server.addr",
	"ws-addr":        "server.ws_addr",
	"admin-addr":     "server.admin_addr",
	"host-name":      "server.host_name",
	"max-workers":    "server.max_workers",
	"serializer":     "server.serializer",
	"compression":    "server.compression",
	"message-rate":   "server.message_rate",
	"etcd":           "etcd.enabled",
	"etcd-endpoints": "etcd.endpoints",
	"log-level":      "log.level",
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var console bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stdin io.Reader
			if console {
				stdin = cmd.InOrStdin()
			}
			return runServe(cmd, opts, stdin)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", "", "TCP listen address (default :8080)")
	flags.String("ws-addr", "", "WebSocket listen address, empty to disable")
	flags.String("admin-addr", "", "admin listen address for health and metrics, empty to disable")
	flags.String("host-name", "", "name used for host announcements")
	flags.Int("max-workers", 0, "maximum number of concurrently served connections")
	flags.String("serializer", "", "payload serializer: proto or json")
	flags.Bool("compression", false, "compress large frames with zstd")
	flags.Float64("message-rate", 0, "commands per second allowed per session, 0 disables limiting")
	flags.Bool("etcd", false, "publish this relay in etcd")
	flags.StringSlice("etcd-endpoints", nil, "etcd endpoints")
	flags.String("log-level", "", "log level")
	flags.BoolVar(&console, "console", false, "read host announcements from stdin")
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, stdin io.Reader) error {
	app, err := bootstrap(opts, func(v *zviper.Config) error {
		server.SetDefaults(v)
		discovery.SetDefaults(v)
		return bindFlags(v, cmd.Flags(), serveFlagBindings)
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Info(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	defer undo()

	cfg, err := server.LoadConfig(app.Config())
	if err != nil {
		return err
	}
	dcfg, err := discovery.LoadConfig(app.Config())
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.WithDiscovery(dcfg))
	if err != nil {
		return err
	}
	if err := srv.Host(); err != nil {
		log.Error("failed to host relay", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveDone := conc.Go(func() (struct{}, error) {
		return struct{}{}, srv.Serve(ctx)
	})
	if stdin != nil {
		go announceFromConsole(ctx, srv, stdin)
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-serveDone.Inner():
		log.Error("relay stopped unexpectedly", zap.Error(serveDone.Err()))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+stopSlack)
	defer cancel()
	stopErr := srv.Stop(stopCtx)
	_, serveErr := serveDone.Await()
	if serveErr != nil {
		return serveErr
	}
	return stopErr
}

// announceFromConsole 将标准输入的每一行作为服务端公告广播。
func announceFromConsole(ctx context.Context, srv *server.Server, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		srv.Announce(ctx, line)
	}
}
