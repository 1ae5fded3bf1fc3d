package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/rollcall/version"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{annotationNoConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rollcall %s\n", version.GitRelease)
		fmt.Printf("  Go:     %s\n", version.GoInfo)
		fmt.Printf("  Commit: %s\n", version.GitCommit)
		fmt.Printf("  Date:   %s\n", version.GitCommitDate)
	},
}
