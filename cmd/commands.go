// Package cmd roots the calassoc command tree, the way OPA's cmd package
// roots opa's subcommands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/GeminiDRSoftware/GeminiCalMgr/cmd/calcheck"
)

// RootCommand is the base CLI command every subcommand attaches to.
var RootCommand = &cobra.Command{
	Use:   "calassoc",
	Short: "Calibration association engine",
	Long:  "calassoc selects best-matching calibration frames for a science observation from a catalog, per instrument-specific rules.",
}

func init() {
	calcheck.Command(RootCommand)
}
