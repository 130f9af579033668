package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hashtagemy/guard/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			b := version.Build()
			fmt.Println(b.String())
			if b.GoVersion != "" {
				fmt.Println("built with", b.GoVersion)
			}
		},
	}
}
