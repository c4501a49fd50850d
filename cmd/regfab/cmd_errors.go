package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"regfabric/common"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List the library error codes",
	Run:   runErrorsCommand,
}

func init() {
	rootCmd.AddCommand(errorsCmd)
}

func runErrorsCommand(cmd *cobra.Command, args []string) {
	fmt.Println("Register Fabric Error Code List")
	fmt.Println()
	for _, info := range common.Codes() {
		fmt.Printf("0x%04x  %-22s  %s\n", uint32(info.Code), info.Name, info.Desc)
	}
}
