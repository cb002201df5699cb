package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the studyforge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("studyforge %s (%s %s/%s)\n", buildVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
