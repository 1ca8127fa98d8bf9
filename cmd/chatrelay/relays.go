package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/blang/semver/v4"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/chatrelay-go/internal/discovery"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
	zviper "github.com/lk2023060901/chatrelay-go/pkg/util/viper"
)

const listTimeout = 10 * time.Second

func newRelaysCommand(opts *rootOptions) *cobra.Command {
	var versionRange string
	cmd := &cobra.Command{
		Use:   "relays",
		Short: "List relays published in etcd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(opts, func(v *zviper.Config) error {
				discovery.SetDefaults(v)
				v.SetDefault("log.level", "warn")
				return bindFlags(v, cmd.Flags(), map[string]string{
					"etcd-endpoints": "etcd.endpoints",
					"etcd-root":      "etcd.root",
				})
			})
			if err != nil {
				return err
			}
			dcfg, err := discovery.LoadConfig(app.Config())
			if err != nil {
				return err
			}

			var accept semver.Range
			if versionRange != "" {
				if accept, err = semver.ParseRange(versionRange); err != nil {
					return merr.WrapErrParameterInvalidMsg("invalid --version range %q: %v", versionRange, err)
				}
			}

			cli, err := discovery.NewClient(dcfg)
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
			defer cancel()
			records, err := discovery.List(ctx, cli, dcfg.Root)
			if err != nil {
				return err
			}
			if accept != nil {
				records = discovery.FilterByVersion(records, accept)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVER ID\tADDRESS\tHOST\tVERSION\tSTARTED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ServerID, r.Address, r.HostName, r.Version, r.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	flags := cmd.Flags()
	flags.StringSlice("etcd-endpoints", nil, "etcd endpoints")
	flags.String("etcd-root", "", "key prefix relays are published under")
	flags.StringVar(&versionRange, "version", "", "only list relays matching a semver range, e.g. \">=1.0.0 <2.0.0\"")
	return cmd
}
