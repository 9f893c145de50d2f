package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hollon/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Read()
		return render(info, func() { fmt.Println(info.String()) })
	},
}

func init() {
	rootCmd.Version = version.Get()
}
