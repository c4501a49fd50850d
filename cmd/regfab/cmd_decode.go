package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"regfabric/common"
	"regfabric/internal/fabric"
)

var (
	decodeFabricFile string
	decodeAddr       string
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode an address to the resource mapped there",
	RunE:  runDecodeCommand,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeFabricFile, "fabric", "f", "",
		"YAML fabric description (required)")
	decodeCmd.Flags().StringVarP(&decodeAddr, "addr", "a", "",
		"address to decode (required)")
	_ = decodeCmd.MarkFlagRequired("fabric")
	_ = decodeCmd.MarkFlagRequired("addr")
	rootCmd.AddCommand(decodeCmd)
}

func runDecodeCommand(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(decodeAddr, 0, 64)
	if err != nil {
		return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("bad address %q", decodeAddr))
	}
	sp, err := fabric.ParseFile(decodeFabricFile)
	if err != nil {
		return err
	}
	m, err := fabric.BuildMap(sp)
	if err != nil {
		return err
	}

	digits := int(m.AddrWidth()+3) / 4
	h, ok := m.DecodeAddress(addr)
	if !ok {
		fmt.Printf("0x%0*x -> (unmapped)\n", digits, addr)
		return nil
	}
	info, err := m.FindResource(h)
	if err != nil {
		return err
	}
	fmt.Printf("0x%0*x -> %s (0x%0*x..0x%0*x), width %d\n",
		digits, addr, strings.Join(info.Path, "/"),
		digits, info.Start, digits, info.End, info.Width)
	return nil
}
