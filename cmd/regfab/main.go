// Package main implements regfab, the register fabric command line
// tool: it lists fabric layouts, decodes addresses to resources, runs
// bus scripts against a live fabric, and prints the library error codes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"regfabric/common"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "regfab",
	Short: "Inspect and simulate register fabrics",
	Long: `regfab builds register fabrics from YAML descriptions: it lists
their address space layout, decodes addresses to resources, and drives
them cycle by cycle from bus scripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "none",
		"diagnostic verbosity: none, debug, info or warning")
}

// newLogger builds the logger selected by --log-level.
func newLogger() (common.Logger, error) {
	switch logLevel {
	case "none", "":
		return common.NewNoOpLogger(), nil
	case "debug":
		return common.NewStdLogger(common.SeverityDebug), nil
	case "info":
		return common.NewStdLogger(common.SeverityInfo), nil
	case "warning":
		return common.NewStdLogger(common.SeverityWarning), nil
	}
	return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
		fmt.Sprintf("unknown log level %q", logLevel))
}
