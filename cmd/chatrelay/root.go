package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lk2023060901/chatrelay-go/application"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Multi-user TCP chat relay",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $"+application.ConfigPathEnv+" or "+application.DefaultConfigPath+")")

	root.AddCommand(
		newServeCommand(opts),
		newClientCommand(opts),
		newRelaysCommand(opts),
		newVersionCommand(),
	)
	return root
}

// bindFlags 将命令行参数绑定到配置 key，map 的 key 为参数名。
func bindFlags(v *zviper.Config, flags *pflag.FlagSet, bindings map[string]string) error {
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag --%s", flag)
		}
	}
	return nil
}

// bootstrap 加载配置文件并初始化全局日志，prepare 在加载前注册默认值与参数绑定。
func bootstrap(opts *rootOptions, prepare func(v *zviper.Config) error) (*application.Application, error) {
	app := application.New()
	if prepare != nil {
		if err := prepare(app.Config()); err != nil {
			return nil, err
		}
	}
	if err := app.LoadConfig(opts.configPath); err != nil {
		return nil, err
	}
	if err := app.InitLogging(); err != nil {
		return nil, err
	}
	return app, nil
}
