package main

import (
	"fmt"

	"github.com/nomis52/e2eflow/buildinfo"
	"github.com/spf13/cobra"
)

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			props := buildinfo.Get()
			fmt.Fprintf(c.out, "e2eflow %s\n", props.Version)
			fmt.Fprintf(c.out, "Built: %s\n", props.BuildTime)
			fmt.Fprintf(c.out, "Commit: %s\n", props.GitCommit)
			fmt.Fprintf(c.out, "Go: %s\n", props.GoVersion)
		},
	}
}
