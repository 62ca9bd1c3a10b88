package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ecog2nwb/cmd/convert"
	"ecog2nwb/cmd/extensions"
	"ecog2nwb/internal/buildinfo"
	"ecog2nwb/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ecog2nwb",
		Short:   "Convert Chang-lab ECoG recordings to NWB archives",
		Version: buildinfo.String(),
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		convert.Command(settings),
		extensions.Command(),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.LogPath, "log", viper.GetString("logpath"), "Path to a rotated log file, empty for stderr only")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
