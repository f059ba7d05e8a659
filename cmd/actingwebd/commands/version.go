package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actingweb/actingweb-go/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("actingwebd version %s", build.Version())

	if commit := build.CommitHash(); commit != "" {
		fmt.Printf(" commit=%s", commit)
	}
	if gv := build.GoVersion(); gv != "" {
		fmt.Printf(" go=%s", gv)
	}

	fmt.Println()
}
