package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/config"
	"github.com/couchcryptid/pollen-map/internal/geo"
	"github.com/couchcryptid/pollen-map/internal/observability"
	"github.com/couchcryptid/pollen-map/internal/render"
)

var (
	cfgFile string
	// newMetrics registers with the default registry; tests swap it out.
	newMetrics = observability.NewMetrics
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pollenmap",
		Short:         "Generate and repair the China pollen distribution maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+" when present)")
	pf.String("output-dir", "", "output directory of the generated site")
	pf.String("cities-file", "", "city table YAML (default is the embedded table)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or text")

	root.AddCommand(
		newGenerateCmd(),
		newRepairCmd(),
		newServeCmd(),
		newCitiesCmd(),
		newSampleCmd(),
		newValidateCmd(),
	)
	return root
}

// env carries what every command needs once configuration is loaded.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(config.Options{File: cfgFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat),
		metrics: newMetrics(),
	}, nil
}

func (e *env) cityTable() (*geo.Table, error) {
	return geo.Load(e.cfg.CitiesFile)
}

func (e *env) emitter(table *geo.Table) (*render.Emitter, error) {
	lon, lat := table.Center()
	return render.NewEmitter(render.Options{
		EchartsMirrors:  e.cfg.EchartsMirrors,
		ChinaMapMirrors: e.cfg.ChinaMapMirrors,
		CenterLon:       lon,
		CenterLat:       lat,
	})
}
