package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/playperu/campustour/internal/tour"
)

var errDangling = errors.New("tour has dangling waypoint targets")

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tour.json>",
		Short: "Check scene geometry and hotspot fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readTourFile(args[0])
			if err != nil {
				return err
			}
			if err := tour.Validate(d); err != nil {
				return fmt.Errorf("%s is invalid:\n%w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d scenes ok\n", args[0], len(d.Scenes))
			if n := len(d.DanglingTargets()); n > 0 {
				fmt.Fprintf(out, "warning: %d waypoints point at missing scenes\n", n)
			}
			return nil
		},
	}
}

func (c *cli) danglingCmd() *cobra.Command {
	var asJSON, check bool
	cmd := &cobra.Command{
		Use:   "dangling <tour.json>",
		Short: "List waypoints whose target scene no longer exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readTourFile(args[0])
			if err != nil {
				return err
			}
			refs := d.DanglingTargets()
			out := cmd.OutOrStdout()

			if asJSON {
				if refs == nil {
					refs = []tour.DanglingRef{}
				}
				if err := json.NewEncoder(out).Encode(refs); err != nil {
					return err
				}
			} else if len(refs) == 0 {
				fmt.Fprintln(out, "no dangling targets")
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SCENE\tHOTSPOT\tTARGET")
				for _, r := range refs {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", r.SceneID, r.HotspotIndex, r.Target)
				}
				tw.Flush()
			}

			if check && len(refs) > 0 {
				return errDangling
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	cmd.Flags().BoolVar(&check, "check", false, "exit non-zero when any target dangles")
	return cmd
}

func (c *cli) pruneCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune <tour.json>",
		Short: "Remove waypoints whose target scene no longer exists",
		Long: "Removes every waypoint hotspot pointing at a missing scene and rewrites the file.\n" +
			"The authoring tool leaves such waypoints in place when a scene is deleted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readTourFile(args[0])
			if err != nil {
				return err
			}
			n := d.PruneDangling()
			out := cmd.OutOrStdout()
			if n == 0 {
				fmt.Fprintln(out, "nothing to prune")
				return nil
			}
			if dryRun {
				fmt.Fprintf(out, "would remove %d waypoints\n", n)
				return nil
			}
			if err := writeTourFile(args[0], d); err != nil {
				return err
			}
			c.logger.Info("pruned dangling waypoints", "file", args[0], "removed", n)
			fmt.Fprintf(out, "removed %d waypoints\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func (c *cli) lowresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lowres <image-url>...",
		Short: "Print the low-resolution URL derived from each image URL",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, u := range args {
				fmt.Fprintln(cmd.OutOrStdout(), tour.DeriveLowRes(u))
			}
		},
	}
}
