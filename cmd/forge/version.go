package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forge version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Get())
		return nil
	},
}
