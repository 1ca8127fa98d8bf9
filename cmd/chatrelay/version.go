package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/chatrelay-go/internal/server"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := server.SemVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "chatrelay %s (major %d, %s %s/%s)\n",
				v, v.Major, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
