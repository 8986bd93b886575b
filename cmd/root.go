package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pdfmaster/internal/config"
)

type rootOptions struct {
	cfgFile string
	debug   bool
	cfg     config.Config
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "pdfmaster",
		Short:         "Web front-end and CLI for a remote PDF processing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "config.yml", "config file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newProcessCmd(opts))
	return rootCmd
}
