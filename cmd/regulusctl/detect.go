package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/errors"
)

var (
	withFlag      []int
	horizonFlag   float64
	thresholdFlag float64
)

var detectCmd = &cobra.Command{
	Use:   "detect <primary-id>",
	Short: "Run conjunction detection for one object",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	for _, cmd := range []*cobra.Command{detectCmd, screenCmd} {
		cmd.Flags().IntSliceVar(&withFlag, "with", nil, "screen only against these object ids (SUBSET mode)")
		cmd.Flags().Float64Var(&horizonFlag, "horizon", 0, "hours to look ahead (0: service default)")
		cmd.Flags().Float64Var(&thresholdFlag, "threshold", 0, "report approaches closer than this many km (0: service default)")
	}
}

func buildRequest(arg string) (conjunction.Request, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return conjunction.Request{}, errors.InvalidArgumentf("primary id must be an integer, got %q", arg)
	}
	req := conjunction.Request{
		PrimaryID:    id,
		Mode:         conjunction.ModeAll,
		HorizonHours: horizonFlag,
		ThresholdKm:  thresholdFlag,
	}
	if len(withFlag) > 0 {
		req.Mode = conjunction.ModeSubset
		req.SecondaryIDs = withFlag
	}
	return req, nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var res conjunction.Result
	if err := newClient().post(ctx, "/api/v1/conjunctions/detect", req, &res); err != nil {
		return err
	}
	if jsonFlag {
		return outputJSON(res)
	}
	return printResult(&res)
}

func printResult(res *conjunction.Result) error {
	name := res.PrimaryName
	if name == "" {
		name = "object " + strconv.Itoa(res.PrimaryID)
	}
	pterm.DefaultSection.Printf("%s (%d)", name, res.PrimaryID)
	pterm.Printf("Window:    %s → %s (%.0f h)\n",
		res.WindowStart.Format(time.RFC3339), res.WindowEnd.Format(time.RFC3339), res.HorizonHours)
	pterm.Printf("Threshold: %.2f km   Checked: %d   Element set age: %.1f days\n",
		res.ThresholdKm, res.CheckedAgainst, res.PrimaryAgeDays)
	pterm.Printf("Run key:   %s\n\n", res.RunKey)

	for _, w := range res.Warnings {
		pterm.Warning.Println(w)
	}

	if len(res.Collisions) == 0 {
		pterm.Success.Println("No conjunctions within threshold")
		return nil
	}

	data := pterm.TableData{{"SECONDARY", "TCA (UTC)", "MISS KM", "REL. VEL. M/S", "TIER", "REVIEW"}}
	for _, c := range res.Collisions {
		secondary := strconv.Itoa(c.SecondaryID)
		if c.SecondaryName != "" {
			secondary += " " + c.SecondaryName
		}
		data = append(data, []string{
			secondary,
			c.TCA.UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.3f", c.MissDistanceKm),
			velocity(c.RelativeVelocityMps),
			tierText(c.RiskTier),
			yesNo(c.RequiresManeuverReview),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printf("%d conjunction(s) detected\n", res.CollisionsDetected)
	return nil
}

func velocity(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func tierText(t conjunction.RiskTier) string {
	switch t {
	case conjunction.TierCritical:
		return pterm.Red(t.String())
	case conjunction.TierHigh:
		return pterm.LightRed(t.String())
	case conjunction.TierMedium:
		return pterm.Yellow(t.String())
	default:
		return t.String()
	}
}

func yesNo(b bool) string {
	if b {
		return pterm.LightRed("yes")
	}
	return "no"
}
