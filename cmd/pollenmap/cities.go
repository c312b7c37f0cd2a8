package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/adapter/fs"
	"github.com/couchcryptid/pollen-map/internal/adapter/mapbox"
	"github.com/couchcryptid/pollen-map/internal/domain"
	"github.com/couchcryptid/pollen-map/internal/geo"
)

func newCitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "Inspect and maintain the city table",
	}
	cmd.AddCommand(newCitiesListCmd(), newCitiesGeocodeCmd())
	return cmd
}

func newCitiesListCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the city table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			table, err := e.cityTable()
			if err != nil {
				return err
			}
			if asYAML {
				data, err := geo.Marshal(table.Cities())
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return printCities(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print in the table file format")
	return cmd
}

func printCities(w io.Writer, table *geo.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tPROVINCE\tLON\tLAT")
	for _, c := range table.Cities() {
		lon, lat := "-", "-"
		if c.HasCoordinates() {
			lon, lat = fmt.Sprintf("%.4f", c.Lon), fmt.Sprintf("%.4f", c.Lat)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Code, c.Name, c.Province, lon, lat)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	lon, lat := table.Center()
	_, err := fmt.Fprintf(w, "%d cities, map centre %.4f, %.4f\n", table.Len(), lon, lat)
	return err
}

func newCitiesGeocodeCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Fill missing city coordinates with Mapbox forward geocoding",
		Long: `Looks up every city of the table that has no coordinates through the
Mapbox geocoding API (token from POLLENMAP_MAPBOX_TOKEN) and writes the
completed table. Cities that already carry coordinates are never changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			if e.cfg.MapboxToken == "" {
				return errors.New("mapbox token is not set (POLLENMAP_MAPBOX_TOKEN)")
			}
			table, err := e.cityTable()
			if err != nil {
				return err
			}

			client := mapbox.NewClient(e.cfg.MapboxToken, e.cfg.MapboxTimeout, e.logger, e.metrics)
			geocoder := mapbox.NewCachedGeocoder(client, e.cfg.MapboxCacheSize, e.metrics)
			e.metrics.GeocodeEnabled.Set(1)

			filled, summary := domain.FillCoordinates(cmd.Context(), table.Cities(), geocoder, e.logger)
			if _, err := geo.New(filled); err != nil {
				return fmt.Errorf("geocoded table is invalid: %w", err)
			}
			data, err := geo.Marshal(filled)
			if err != nil {
				return err
			}

			if outPath == "" {
				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			} else {
				w, err := fs.NewWriter(".", false)
				if err != nil {
					return err
				}
				if err := w.WriteFile(outPath, data); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d filled, %d already placed, %d failed\n",
				summary.Filled, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d cities could not be geocoded", summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the table here instead of stdout")
	cmd.Flags().String("mapbox-timeout", "", "per-request timeout, e.g. 5s")
	return cmd
}
