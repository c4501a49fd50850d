package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"regfabric/internal/lister"
)

var (
	listFabricFile string
	listOutputFile string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the address space layout of a fabric",
	Long: `Lays out a fabric description and renders its resource table,
windows and window address match patterns.`,
	RunE: runListCommand,
}

func init() {
	listCmd.Flags().StringVarP(&listFabricFile, "fabric", "f", "",
		"YAML fabric description (required)")
	listCmd.Flags().StringVarP(&listOutputFile, "out", "o", "",
		"output file (default stdout)")
	_ = listCmd.MarkFlagRequired("fabric")
	rootCmd.AddCommand(listCmd)
}

func runListCommand(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	var w io.Writer = os.Stdout
	if listOutputFile != "" {
		f, err := os.Create(listOutputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return lister.Run(lister.Config{
		FabricFile:   listFabricFile,
		OutputWriter: w,
		Logger:       log,
	})
}
