package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nooga/esvm/pkg/image"
)

func getCmdDisasm(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm image",
		Short: "Print the bytecode of a program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Load(gs.fs, args[0])
			if err != nil {
				return err
			}
			code, err := img.Code()
			if err != nil {
				return err
			}
			if img.Source != "" {
				fmt.Fprintf(gs.stdout, "; compiled from %s\n", img.Source)
			}
			fmt.Fprint(gs.stdout, code.Disassemble())
			return nil
		},
	}
}
