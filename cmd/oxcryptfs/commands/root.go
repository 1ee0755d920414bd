// Package commands implements the oxcryptfs CLI: mount, unmount, list, and
// version subcommands over the vault runtime (spec §6 external interfaces).
package commands

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "oxcryptfs",
	Short: "Mount and manage Cryptomator vaults",
	Long: `oxcryptfs mounts a Cryptomator-format encrypted vault as a regular
filesystem and manages the set of currently active mounts.

Use "oxcryptfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&statePath, "state-file", "", "path to the mount-state JSON file (default: per-user config dir)")

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the root command; called once from main.main.
func Execute() error {
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) { configureLogging() }
	return rootCmd.Execute()
}

// configureLogging sets logrus's formatter and level from the verbose flag
// and the NO_COLOR/FORCE_COLOR environment variables (spec §6 "adapter-level
// color policy, not core").
func configureLogging() {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	_, noColor := os.LookupEnv("NO_COLOR")
	_, forceColor := os.LookupEnv("FORCE_COLOR")
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: noColor && !forceColor,
		ForceColors:   forceColor,
		FullTimestamp: true,
	})
}

// PrintErr prints a message to stderr through the root command, the way
// cobra's own error path does.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
