package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Casper/internal/logger"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run builds the command tree and executes it.
func run() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "casper",
		Short:         "CBC Casper validator simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String(logLevelKey, "info", "Log level: debug, info, warn or error")
	root.PersistentPreRunE = setupLogging

	root.AddCommand(randomCommand(), snapshotCommand())

	return root
}

// setupLogging installs the logger at the level given on the command line.
func setupLogging(c *cobra.Command, _ []string) error {
	s, err := c.Flags().GetString(logLevelKey)
	if err != nil {
		return err
	}

	lvl, err := logger.ParseLevel(s)
	if err != nil {
		return err
	}

	logger.Setup(os.Stderr, lvl)

	return nil
}
