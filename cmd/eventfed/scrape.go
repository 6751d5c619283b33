package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/model"
	"github.com/spf13/cobra"
)

// loadSite parses id and reads the site.
func (a *app) loadSite(cmd *cobra.Command, id string) (*model.Site, error) {
	siteID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid site ID %q: %w", id, err)
	}
	return a.store.GetSite(cmd.Context(), siteID)
}

func discoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <site-id>",
		Short: "Find the events page of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			site, err := a.loadSite(cmd, args[0])
			if err != nil {
				return err
			}

			result, err := a.service.DiscoverEventPage(cmd.Context(), *site)
			if err != nil {
				return err
			}

			fmt.Printf("State:        %s\n", result.State)
			fmt.Printf("CMS:          %s\n", result.CmsType)
			if result.EventPageURL != "" {
				fmt.Printf("Event page:   %s (confidence %.2f)\n", result.EventPageURL, result.Confidence)
			}
			if result.APIEndpoint != "" {
				fmt.Printf("API endpoint: %s\n", result.APIEndpoint)
			}
			if result.RequiresJavascript {
				fmt.Println("Requires JavaScript rendering")
			}
			fmt.Printf("Checked %d of %d candidates\n", len(result.Checks), len(result.Candidates))
			return nil
		},
	}
}

func scrapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <site-id>",
		Short: "Scrape the events of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			site, err := a.loadSite(cmd, args[0])
			if err != nil {
				return err
			}

			events, err := a.service.ScrapeSite(cmd.Context(), *site)
			if err != nil {
				return err
			}

			fmt.Printf("Scraped %d events from %s\n", len(events), site.Name)
			for _, ev := range events {
				fmt.Printf("  %s  %s\n", ev.StartDate.Local().Format("2006-01-02 15:04"), ev.Title)
			}
			return nil
		},
	}
}

func batchCommand() *cobra.Command {
	var (
		limit       int
		maxDistance float64
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scrape the sites that are due, one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Batch.Limit
			}
			if !cmd.Flags().Changed("max-distance") {
				maxDistance = a.cfg.Batch.MaxDistanceKm
			}

			result, err := a.runner.ScrapeBatch(cmd.Context(), limit, maxDistance)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			for _, s := range result.Sites {
				line := fmt.Sprintf("%-30s %-16s %3d events", s.Name, s.Status, s.Events)
				if s.Error != "" {
					line += "  " + s.Error
				}
				fmt.Println(line)
			}
			fmt.Printf("\n%d succeeded, %d failed, %d events in %s\n",
				result.SuccessCount, result.FailedCount, result.TotalEvents,
				result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sites (default from config)")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "only sites within this many km of home (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
