package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cmdMain = &cobra.Command{
	Use:   "meshcopd",
	Short: "Mesh network dataset daemon",
}

func main() {
	cmdMain.AddCommand(newRunCommand(), newStampCommand())
	if err := cmdMain.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
