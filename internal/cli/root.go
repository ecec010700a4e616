// Package cli implements the meet command: a headless participant that
// joins rooms over the signaling server.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "meet",
	Short: "Join mesh video calls from the terminal",
	Long: `meet is a headless participant for Meet rooms. It signals through the
Meet server and opens a direct media link to every other participant.`,
}

func init() {
	config.ClientFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(joinCmd, newCmd, roomsCmd)
}

// Execute runs the root command. It is called once from main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		PrintError(err.Error())
		os.Exit(1)
	}
}

// loadConfig resolves client settings for cmd and applies the log level.
func loadConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.LoadClient(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}
