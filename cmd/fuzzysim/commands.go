// v0
// cmd/fuzzysim/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nrgchamp/fuzzycrac/internal/config"
	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/simulation"
)

type rootOptions struct {
	properties string
	samples    int
	format     string
	out        string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fuzzysim",
		Short:         "Offline driver for the fuzzy CRAC controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.properties, "properties", "", "properties file with setpoint, model and defuzz.samples overrides")
	pf.IntVar(&opts.samples, "samples", 0, "centroid samples over the output domain (0 keeps the configured value)")
	pf.StringVar(&opts.format, "format", "json", "output format: json, yaml or csv (csv only for simulate)")
	pf.StringVarP(&opts.out, "out", "o", "", "write output to this file instead of stdout")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(newSimulateCmd(opts), newInferCmd(opts), newRulesCmd(opts), newMembershipCmd(opts))
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (o *rootOptions) config(log *slog.Logger) (*config.AppConfig, error) {
	cfg := config.Default()
	if o.properties != "" {
		if err := cfg.LoadProperties(o.properties, log); err != nil {
			return nil, err
		}
	}
	if o.samples > 0 {
		cfg.DefuzzSamples = o.samples
	}
	return cfg, nil
}

func (o *rootOptions) engine(cfg *config.AppConfig) (*fuzzy.Engine, error) {
	return fuzzy.NewDefaultEngine(fuzzy.WithResolution(cfg.DefuzzSamples))
}

// emit writes v in the selected format to --out or the command's stdout.
func (o *rootOptions) emit(cmd *cobra.Command, v any, csvRows func(io.Writer) error) error {
	w := cmd.OutOrStdout()
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return fmt.Errorf("create %s: %w", o.out, err)
		}
		defer f.Close()
		w = f
	}
	switch strings.ToLower(o.format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		if csvRows == nil {
			return fmt.Errorf("csv output is not supported by %s", cmd.Name())
		}
		return csvRows(w)
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		setpoint, initial float64
		seed              int64
		summary           bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the 24-hour closed-loop simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := opts.logger(cmd)
			cfg, err := opts.config(log)
			if err != nil {
				return err
			}
			eng, err := opts.engine(cfg)
			if err != nil {
				return err
			}
			p := simulation.Params{Setpoint: cfg.Setpoint, InitialTemp: cfg.InitialTemp, Start: time.Now().UTC().Truncate(time.Minute)}
			if cmd.Flags().Changed("setpoint") {
				p.Setpoint = setpoint
			}
			if cmd.Flags().Changed("initial") {
				p.InitialTemp = initial
			}
			if cmd.Flags().Changed("seed") {
				p.Seed = &seed
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			run, err := simulation.New(eng, simulation.WithModel(cfg.Model), simulation.WithEnvironment(cfg.Environment), simulation.WithLogger(log)).Run(ctx, p)
			if err != nil {
				return err
			}
			if summary {
				return opts.emit(cmd, map[string]any{"id": run.ID, "seed": *run.Seed, "statistics": run.Statistics}, nil)
			}
			return opts.emit(cmd, run, func(w io.Writer) error { return simulation.WriteCSV(w, run.Steps) })
		},
	}
	cmd.Flags().Float64Var(&setpoint, "setpoint", 22, "target temperature in °C")
	cmd.Flags().Float64Var(&initial, "initial", 22, "initial room temperature in °C")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed; omitted draws one and reports it")
	cmd.Flags().BoolVar(&summary, "summary", false, "print only the statistics")
	return cmd
}

func newInferCmd(opts *rootOptions) *cobra.Command {
	var in fuzzy.Inputs
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run a single inference and print the full trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(opts.logger(cmd))
			if err != nil {
				return err
			}
			eng, err := opts.engine(cfg)
			if err != nil {
				return err
			}
			res, err := eng.Infer(in)
			if err != nil {
				return err
			}
			return opts.emit(cmd, res, nil)
		},
	}
	cmd.Flags().Float64Var(&in.Error, "error", 0, "setpoint minus current temperature (°C)")
	cmd.Flags().Float64Var(&in.DeltaError, "delta-error", 0, "change of the error since the last step (°C)")
	cmd.Flags().Float64Var(&in.ExternalTemp, "external", 25, "outside temperature (°C)")
	cmd.Flags().Float64Var(&in.ThermalLoad, "load", 40, "thermal load (%)")
	return cmd
}

func newRulesCmd(opts *rootOptions) *cobra.Command {
	var ext, load string
	var table bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule base, or one error x delta-error table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rb, err := fuzzy.DefaultRuleBase(fuzzy.MustStandardVariables())
			if err != nil {
				return err
			}
			if table {
				tb, err := rb.Table(ext, load)
				if err != nil {
					return err
				}
				return opts.emit(cmd, tb, nil)
			}
			return opts.emit(cmd, rb.Rules(), nil)
		},
	}
	cmd.Flags().BoolVar(&table, "table", false, "print the table for --external-label and --load-label")
	cmd.Flags().StringVar(&ext, "external-label", fuzzy.LabelM, "external temperature label for --table")
	cmd.Flags().StringVar(&load, "load-label", fuzzy.LabelM, "thermal load label for --table")
	return cmd
}

func newMembershipCmd(opts *rootOptions) *cobra.Command {
	var variable string
	var points int
	cmd := &cobra.Command{
		Use:   "membership",
		Short: "Sample the membership curves of every variable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vs := fuzzy.MustStandardVariables()
			out := map[string]fuzzy.Curves{}
			if variable != "" {
				v, ok := vs.Lookup(variable)
				if !ok {
					return fmt.Errorf("unknown variable %q", variable)
				}
				out[v.Name()] = v.Curves(points)
			} else {
				for _, v := range vs.All() {
					out[v.Name()] = v.Curves(points)
				}
			}
			return opts.emit(cmd, out, nil)
		},
	}
	cmd.Flags().StringVar(&variable, "variable", "", "only this variable")
	cmd.Flags().IntVar(&points, "points", fuzzy.DefaultCurvePoints, "samples per curve")
	return cmd
}
