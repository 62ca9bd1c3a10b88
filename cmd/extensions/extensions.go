// Package extensions implements the extensions subcommand: emit the NWB
// schema-extension YAML file pairs the archives reference.
package extensions

import (
	"fmt"

	"github.com/spf13/cobra"

	"ecog2nwb/internal/nwbspec"
)

// Command creates the extensions command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "extensions [output-dir]",
		Short: "Generate the NWB schema extension YAML files",
		Long: `Generate the namespace + extensions YAML file pairs for the cortical
surface and subject metadata schema extensions. Files are written into the
given directory, or the current directory when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			for _, nb := range []*nwbspec.NamespaceBuilder{
				nwbspec.EcogNamespace(),
				nwbspec.MetaNamespace(),
			} {
				if err := nb.Export(dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", nb.ExtensionsFileName())
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", nb.NamespaceFileName())
			}
			return nil
		},
	}
}
