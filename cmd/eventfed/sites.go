package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pevans/eventfed/model"
	"github.com/pevans/eventfed/store"
	"github.com/spf13/cobra"
)

func sitesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "Manage municipality sites",
	}
	cmd.AddCommand(sitesAddCommand())
	cmd.AddCommand(sitesListCommand())
	return cmd
}

func sitesAddCommand() *cobra.Command {
	var in store.NewSite

	cmd := &cobra.Command{
		Use:   "add <name> <website-url>",
		Short: "Register a municipality site",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			in.Name, in.WebsiteURL = args[0], args[1]
			site, err := a.store.CreateSite(cmd.Context(), in)
			if err != nil {
				return err
			}

			fmt.Printf("Created site %s (%s)\n", site.Name, site.ID)
			return nil
		},
	}

	cmd.Flags().Float64Var(&in.Latitude, "lat", 0, "latitude of the municipality")
	cmd.Flags().Float64Var(&in.Longitude, "lon", 0, "longitude of the municipality")
	cmd.Flags().StringVar(&in.Language, "language", "", "primary language (de, fr, it, rm)")
	return cmd
}

func sitesListCommand() *cobra.Command {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			filter := store.SiteFilter{Limit: limit}
			if status != "" {
				s := model.ParseScrapeStatus(status)
				filter.Status = &s
			}

			sites, err := a.store.ListSites(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sites)
			}
			renderSites(sites)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only sites with this scrape status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sites")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// renderSites prints sites as a table.
func renderSites(sites []model.Site) {
	if len(sites) == 0 {
		fmt.Println("No sites to display.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Status", "CMS", "Events", "Event Page", "Last Scraped"})

	for _, s := range sites {
		lastScraped := "never"
		if s.LastScraped != nil {
			lastScraped = s.LastScraped.Local().Format("2006-01-02 15:04")
		}
		page := s.EventPageURL
		if page == "" && s.APIEndpoint != "" {
			page = s.APIEndpoint + " (api)"
		}
		t.AppendRow(table.Row{
			s.ID.String(),
			s.Name,
			string(s.ScrapeStatus),
			string(s.CmsType),
			strconv.Itoa(s.EventCount),
			page,
			lastScraped,
		})
	}

	t.Render()
}
