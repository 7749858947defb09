// Package cmd provides the root command and CLI setup for vss2git.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// logFileFlag overrides the operator log file location.
var logFileFlag string

// verboseFlag switches the operator log to debug level.
var verboseFlag bool

const rootLongDescription = `vss2git migrates the full revision history of a Visual SourceSafe archive
into a git repository, preserving semantics git has no direct equivalent
for: shared files, branch-on-share-break, version pinning, soft
delete/recover, and project moves and renames.

The migration runs as a three-stage pipeline: collect the global revision
log, group it into atomic changesets, then replay the changesets against a
working tree and commit each one. Runs can be bounded by date and resumed
without duplicating commits.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vss2git",
		Short: "Migrate Visual SourceSafe history to git",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(logFileFlag, verboseFlag || viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&logFileFlag, "log", viper.GetString(logFilenameKey), "operator log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup("log"), logFilenameKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup("verbose"), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
