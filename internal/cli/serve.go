package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "Do not run scheduled generation")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost       string
	servePort       int
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studyforge API server",
	Long: `Start the HTTP API together with scheduled challenge generation
and health checks. Stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveNoSchedule {
		cfg.Scheduler.Enabled = false
	}

	d, err := newDaemon(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Serve(cmd.Context())
}
