package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const configFilePath = "./configs/config.yaml"

func main() {
	var (
		cfgPath  string
		logLevel string
	)

	root := &cobra.Command{
		Use:           "support-rag",
		Short:         "Answer support questions from internal documents and web research",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", configFilePath, "config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "debug", "log level (debug, info, warn, error)")

	root.AddCommand(
		askCMD(&cfgPath),
		batchCMD(&cfgPath),
		analyzeCMD(&cfgPath),
		indexCMD(&cfgPath),
		runsCMD(&cfgPath),
	)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
