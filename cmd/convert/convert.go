// Package convert implements the convert subcommand: one recording block in,
// one session archive out.
package convert

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ecog2nwb/internal/conf"
	"ecog2nwb/internal/converter"
)

// Command creates the convert command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [blockpath] [output.nwb]",
		Short: "Convert a recording block to an NWB archive",
		Long: `Convert one recording block directory (RawHTK, Analog, Artifacts,
Meshes) into a single NWB archive. When the output path is omitted the
archive is written next to the block as <blockpath>.nwb.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath := ""
			if len(args) > 1 {
				outPath = args[1]
			}
			res, err := converter.Run(settings, args[0], outPath)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			return nil
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags configures flags specific to the convert command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Convert.Format, "format", "f", viper.GetString("convert.format"), "Electrophysiology source format: htk, mat")
	cmd.Flags().StringVar(&settings.Convert.Mesh, "mesh", viper.GetString("convert.mesh"), "Cortical mesh mode: none, embed, external")
	cmd.Flags().BoolVar(&settings.Convert.Microphone, "mic", viper.GetBool("convert.microphone"), "Include the room microphone channel")
	cmd.Flags().BoolVar(&settings.Convert.Speakers, "speakers", viper.GetBool("convert.speakers"), "Include the two speaker stimulus channels")
	cmd.Flags().StringVar(&settings.Convert.Aux, "aux", viper.GetString("convert.aux"), "Name for the ANIN4 auxiliary series, empty to skip")
	cmd.Flags().BoolVar(&settings.Convert.Hilbert, "hilbert", viper.GetBool("convert.hilbert"), "Include the Hilbert band processing module")
	cmd.Flags().BoolVarP(&settings.Convert.ScaleSampleRate, "scale", "s", viper.GetBool("convert.scalesamplerate"), "Rescale the HTK sampling rate")
	cmd.Flags().BoolVar(&settings.Convert.Mini, "mini", viper.GetBool("convert.mini"), "Truncate signal data for a quick stub conversion")
	cmd.Flags().StringVar(&settings.Convert.ImagingPath, "imaging-path", viper.GetString("convert.imagingpath"), "Override for the per-subject imaging directory")
	cmd.Flags().StringVar(&settings.Session.Description, "description", viper.GetString("session.description"), "Session description, defaults to the block name")
	cmd.Flags().StringVar(&settings.Session.Identifier, "identifier", viper.GetString("session.identifier"), "Session identifier, defaults to the block name")
}

// printSummary renders the conversion result as a table.
func printSummary(out io.Writer, res *converter.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Block", res.BlockName},
		{"Subject", res.Subject},
		{"Archive", res.OutPath},
	})
	if res.AuxPath != "" {
		t.AppendRow(table.Row{"Mesh archive", res.AuxPath})
	}
	t.AppendRows([]table.Row{
		{"Devices", len(res.Devices)},
		{"LFP channels", res.LFPChannels},
		{"EKG channels", res.EKGChannels},
		{"Frames", res.Frames},
		{"Rate (Hz)", res.Rate},
		{"Series", len(res.Series)},
		{"Surfaces", res.Surfaces},
		{"Bad segments", res.BadSegments},
		{"Elapsed", res.Elapsed.Round(time.Millisecond)},
	})
	t.Render()
}
