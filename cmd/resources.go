package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// resourcesCmd lists the resource library the simulator would use
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resource definitions and body presets from the defaults file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDefaultsConfig(settings.GetString("defaults"))
		if err != nil {
			return err
		}
		lib, err := cfg.Library()
		if err != nil {
			return fmt.Errorf("resource library: %w", err)
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDENSITY (t/u)\tUNIT COST\tFLOW")
		for id, d := range lib.Definitions() {
			fmt.Fprintf(tw, "%d\t%s\t%g\t%g\t%s\n", id, d.Name, d.Density, d.UnitCost, d.Flow)
		}
		_ = tw.Flush()

		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BODY\tGRAVITY (m/s²)\tPRESSURE (atm)\tDENSITY (kg/m³)")
		for _, name := range cfg.BodyNames() {
			b := cfg.Bodies[name]
			fmt.Fprintf(tw, "%s\t%g\t%g\t%g\n", name, b.Gravity, b.Pressure, b.Density)
		}
		_ = tw.Flush()
		return nil
	},
}
