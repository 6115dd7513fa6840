// ABOUTME: Distance command: measures how far a point is from a planned route
// ABOUTME: Uses the same hybrid distance as the live detector

package main

import (
	"fmt"
	"math"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/deviation"
	"github.com/harper/offroute/internal/models"
	"github.com/harper/offroute/internal/routefile"
	"github.com/harper/offroute/internal/ui"
	"github.com/spf13/cobra"
)

var (
	distanceRoute     string
	distanceLat       float64
	distanceLng       float64
	distanceThreshold float64
)

var distanceCmd = &cobra.Command{
	Use:   "distance",
	Short: "Show the distance from a point to a route",
	Long: `Show the distance from a point to a planned route, and whether that
point would count as off route.

Examples:
  offroute distance --route commute.yaml --lat 40.7128 --lng -74.0060
  offroute distance -r line12.geojson --lat 41.88 --lng -87.63 -t 100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := models.ValidateCoordinates(distanceLat, distanceLng); err != nil {
			return err
		}
		rf, err := routefile.Load(distanceRoute)
		if err != nil {
			return err
		}

		d := deviation.New()
		d.SetRoute(rf.Route, firstPositive(distanceThreshold, rf.Threshold, cfg.GetThreshold()))

		p := models.Pt(distanceLng, distanceLat)
		dist := d.DistanceToRoute(p)
		out := cmd.OutOrStdout()
		if math.IsInf(dist, 1) {
			fmt.Fprintln(out, color.YellowString("Route is empty"))
			return nil
		}

		verdict := color.GreenString("on route")
		if dist > d.Threshold() {
			verdict = color.RedString("off route")
		}
		fmt.Fprintf(out, "%s is %s from %s (threshold %s): %s\n",
			ui.FormatCoords(p), ui.FormatDistance(dist), firstNonEmpty(rf.Name, distanceRoute),
			ui.FormatDistance(d.Threshold()), verdict)
		return nil
	},
}

func init() {
	distanceCmd.Flags().StringVarP(&distanceRoute, "route", "r", "", "planned route file (.yaml, .geojson)")
	distanceCmd.Flags().Float64Var(&distanceLat, "lat", 0, "latitude")
	distanceCmd.Flags().Float64Var(&distanceLng, "lng", 0, "longitude")
	distanceCmd.Flags().Float64VarP(&distanceThreshold, "threshold", "t", 0, "deviation threshold in meters")
	_ = distanceCmd.MarkFlagRequired("route")
	_ = distanceCmd.MarkFlagRequired("lat")
	_ = distanceCmd.MarkFlagRequired("lng")

	rootCmd.AddCommand(distanceCmd)
}
