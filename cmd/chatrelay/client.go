package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/chatrelay-go/internal/client"
	"github.com/lk2023060901/chatrelay-go/internal/network/codec"
	"github.com/lk2023060901/chatrelay-go/internal/network/connector"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

const joinTimeout = 10 * time.Second

type clientOptions struct {
	addr        string
	name        string
	serializer  string
	compression bool
}

func newClientCommand(opts *rootOptions) *cobra.Command {
	co := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a relay and chat from the terminal",
		Long: `Connect to a relay and chat from the terminal.

Lines are sent to everyone unless they start with a request:
  @user <user id #> <message>
  @room <room id #> <message>
  @create <room name>
  @join <room id #>
  @leave <room id #>
End of input (Ctrl-D) leaves the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd, opts, co)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&co.addr, "addr", "localhost:8080", "relay address")
	flags.StringVar(&co.name, "name", "anon", "display name")
	flags.StringVar(&co.serializer, "serializer", "proto", "payload serializer, must match the relay")
	flags.BoolVar(&co.compression, "compression", false, "compress large frames, must match the relay")
	return cmd
}

func runClient(cmd *cobra.Command, opts *rootOptions, co *clientOptions) error {
	_, err := bootstrap(opts, func(v *zviper.Config) error {
		// 终端客户端的标准输出用于聊天内容，默认只输出警告以上的日志。
		v.SetDefault("log.level", "warn")
		return nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cdc, release, err := codec.NewFromConfig(codec.Config{Serializer: co.serializer, Compression: co.compression})
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	c, err := client.Dial(ctx, co.addr, client.NewWriterView(out), connector.Config{Codec: cdc})
	if err != nil {
		return err
	}
	if err := c.Join(co.name); err != nil {
		return err
	}
	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	_, err = c.WaitJoined(joinCtx)
	cancel()
	if err != nil {
		_ = c.Leave()
		return err
	}

	return chatLoop(ctx, c, cmd.InOrStdin(), out)
}

// chatLoop 逐行读取输入并发送，直到输入结束、收到信号或连接断开。
func chatLoop(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return c.Leave()
			}
			if err := c.Input(line); err != nil {
				log.Warn("send failed", zap.Error(err))
				fmt.Fprintln(out, "System: message not sent:", err)
			}
		case <-ctx.Done():
			return c.Leave()
		case <-c.Done():
			return nil
		}
	}
}
