package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/madddiyarn/regulus/internal/api"
	"github.com/madddiyarn/regulus/internal/conjunction"
	"github.com/madddiyarn/regulus/internal/store"
)

var (
	statusFlag  string
	primaryFlag int
	minTierFlag string
	limitFlag   int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded conjunctions, closest first",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recorded conjunction totals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	eventsCmd.Flags().StringVar(&statusFlag, "status", "", "ACTIVE, SUPERSEDED or EXPIRED (default ACTIVE)")
	eventsCmd.Flags().IntVar(&primaryFlag, "primary", 0, "only events with this primary object")
	eventsCmd.Flags().StringVar(&minTierFlag, "min-tier", "", "only events at or above this risk tier")
	eventsCmd.Flags().IntVar(&limitFlag, "limit", 0, fmt.Sprintf("maximum rows (default %d)", store.DefaultLimit))
}

func runEvents(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if statusFlag != "" {
		q.Set("status", statusFlag)
	}
	if primaryFlag != 0 {
		q.Set("primary_id", strconv.Itoa(primaryFlag))
	}
	if minTierFlag != "" {
		if _, err := conjunction.ParseRiskTier(minTierFlag); err != nil {
			return err
		}
		q.Set("min_tier", minTierFlag)
	}
	if limitFlag != 0 {
		q.Set("limit", strconv.Itoa(limitFlag))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var resp struct {
		Events []conjunction.Event `json:"events"`
		Count  int                 `json:"count"`
	}
	if err := newClient().get(ctx, "/api/v1/conjunctions", q, &resp); err != nil {
		return err
	}
	if jsonFlag {
		return outputJSON(resp)
	}

	if resp.Count == 0 {
		pterm.Info.Println("No matching conjunctions")
		return nil
	}
	data := pterm.TableData{{"PRIMARY", "SECONDARY", "TCA (UTC)", "MISS KM", "REL. VEL. M/S", "TIER", "STATUS", "RUN"}}
	for _, ev := range resp.Events {
		data = append(data, []string{
			strconv.Itoa(ev.PrimaryID),
			strconv.Itoa(ev.SecondaryID),
			ev.TCA.UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.3f", ev.MissDistanceKm),
			velocity(ev.RelativeVelocityMps),
			tierText(ev.RiskTier),
			string(ev.Status),
			ev.RunKey.String()[:8],
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var st api.StatsResponse
	if err := newClient().get(ctx, "/api/v1/conjunctions/stats", nil, &st); err != nil {
		return err
	}
	if jsonFlag {
		return outputJSON(st)
	}

	pterm.DefaultSection.Println("Conjunction events")
	data := pterm.TableData{{"STATUS", "COUNT"}}
	for _, s := range []conjunction.Status{conjunction.StatusActive, conjunction.StatusSuperseded, conjunction.StatusExpired} {
		data = append(data, []string{string(s), strconv.Itoa(st.ByStatus[string(s)])})
	}
	data = append(data, []string{"TOTAL", strconv.Itoa(st.Total)})
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Active by risk tier")
	data = pterm.TableData{{"TIER", "COUNT"}}
	for t := conjunction.TierCritical; t >= conjunction.TierLow; t-- {
		data = append(data, []string{tierText(t), strconv.Itoa(st.ActiveByTier[t.String()])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if st.RequiringReview > 0 {
		pterm.Warning.Printf("%d active conjunction(s) require maneuver review\n", st.RequiringReview)
	}
	if st.ClosestKm != nil {
		pterm.Info.Printf("Closest active approach: %.3f km\n", *st.ClosestKm)
	}

	c := st.Catalog
	pterm.Info.Printf("Catalog: %d object(s), mean element-set age %.1f days, oldest %.1f days\n",
		c.Objects, c.MeanAgeDays, c.OldestAgeDays)
	if c.Stale > 0 {
		pterm.Warning.Printf("%d element set(s) older than %g days\n", c.Stale, c.StaleAfterDays)
	}
	return nil
}
