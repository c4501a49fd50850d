package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"regfabric/internal/sim"
)

var (
	simFabricFile string
	simScriptFile string
	simOutputFile string
	simWideWidth  uint
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a bus script against a fabric",
	Long: `Builds a live fabric from a description and drives it cycle by
cycle from a bus script, tracing every cycle. With --wide, the fabric is
driven through a bus width bridge of the given initiator data width.`,
	RunE: runSimCommand,
}

func init() {
	simCmd.Flags().StringVarP(&simFabricFile, "fabric", "f", "",
		"YAML fabric description (required)")
	simCmd.Flags().StringVarP(&simScriptFile, "script", "s", "",
		"bus script to execute (required)")
	simCmd.Flags().StringVarP(&simOutputFile, "out", "o", "",
		"output file (default stdout)")
	simCmd.Flags().UintVar(&simWideWidth, "wide", 0,
		"drive through a bridge with this initiator data width")
	_ = simCmd.MarkFlagRequired("fabric")
	_ = simCmd.MarkFlagRequired("script")
	rootCmd.AddCommand(simCmd)
}

func runSimCommand(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if simOutputFile != "" {
		f, err := os.Create(simOutputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return sim.Run(sim.Config{
		FabricFile:    simFabricFile,
		ScriptFile:    simScriptFile,
		WideDataWidth: simWideWidth,
		OutputWriter:  w,
		Logger:        log,
	})
}
