package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of flowrig and its packages",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flowrig %s\n", getVersion())
			fmt.Fprintf(out, "  testenv    %s\n", testenv.Version)
			fmt.Fprintf(out, "  lifecycle  %s\n", lifecycle.Version)
			fmt.Fprintf(out, "  flowengine %s\n", flowengine.Version)
			fmt.Fprintf(out, "  flowtest   %s\n", flowtest.Version)
		},
	}
}
