package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"bootfit/adapters/excel"
	"bootfit/adapters/reaction"
	"bootfit/app"
	"bootfit/domain/model"
	"bootfit/internal"
	"bootfit/internal/bootstrap"
	"bootfit/internal/config"
	"bootfit/internal/container"
	"bootfit/internal/fitter"
	"bootfit/internal/report"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bootfit",
		Short: "Fit kinetic models and bootstrap their parameter uncertainty",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newBootstrapCmd(),
		newListCmd(),
		newShowCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fitFlags are shared by fit and bootstrap.
type fitFlags struct {
	modelPath  string
	dataPath   string
	sheet      string
	params     []string
	columns    []string
	numPoint   int
	endTime    float64
	fitMethods []string
}

func (f *fitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.modelPath, "model", "", "Model definition YAML file")
	cmd.Flags().StringVar(&f.dataPath, "data", "", "Observed time course (.xlsx or .csv)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet name (defaults to the first sheet)")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "Fitted parameter as name=lower:upper:value (repeatable)")
	cmd.Flags().StringSliceVar(&f.columns, "columns", nil, "Observed columns to fit (defaults to all)")
	cmd.Flags().IntVar(&f.numPoint, "num-point", 0, "Simulation points (defaults to the observed count)")
	cmd.Flags().Float64Var(&f.endTime, "end-time", 0, "Simulation end time (defaults to the last observed time)")
	cmd.Flags().StringSliceVar(&f.fitMethods, "fit-methods", []string{"bfgs"}, "Optimizer methods for the base fit, tried in order")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
}

func (f *fitFlags) request() (app.BootstrapRequest, error) {
	def, err := reaction.LoadDefinition(f.modelPath)
	if err != nil {
		return app.BootstrapRequest{}, err
	}
	reader := excel.NewDataReader(f.dataPath)
	if f.sheet != "" {
		reader = reader.WithSheet(f.sheet)
	}
	observed, err := reader.ReadObserved()
	if err != nil {
		return app.BootstrapRequest{}, err
	}
	params, err := parseParameters(f.params, def)
	if err != nil {
		return app.BootstrapRequest{}, err
	}
	return app.BootstrapRequest{
		Definition: def,
		Observed:   observed,
		Parameters: params,
		Fit: fitter.Options{
			Columns:  f.columns,
			NumPoint: f.numPoint,
			EndTime:  f.endTime,
			Methods:  f.fitMethods,
		},
	}, nil
}

// parseParameters reads --param values of the form name=lower:upper:value.
// Without any, every model constant is fitted within a decade of its value.
func parseParameters(raws []string, def model.Definition) ([]model.Parameter, error) {
	if len(raws) == 0 {
		out := make([]model.Parameter, 0, len(def.Parameters))
		for _, c := range def.Parameters {
			if c.Value <= 0 {
				return nil, fmt.Errorf("constant %s has non-positive value %v; pass --param explicitly", c.Name, c.Value)
			}
			p, err := model.NewParameter(c.Name, c.Value/10, c.Value*10, c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	out := make([]model.Parameter, 0, len(raws))
	for _, raw := range raws {
		name, bounds, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q: expected name=lower:upper:value", raw)
		}
		parts := strings.Split(bounds, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("parameter %q: expected name=lower:upper:value", raw)
		}
		var vals [3]float64
		for i, s := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", raw, err)
			}
			vals[i] = v
		}
		p, err := model.NewParameter(strings.TrimSpace(name), vals[0], vals[1], vals[2])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))
	return container.New(ctx, cfg, logger)
}

func newFitCmd() *cobra.Command {
	var flags fitFlags

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit model parameters to observed data",
		Long: `Fit the model's parameters to an observed time course and print the
fitted values with the reduced chi-square of the fit.

Example: bootfit fit --model chain.yaml --data observed.xlsx --param k1=0.01:10:1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			snap, err := c.Service.Fit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Model: %s\n", snap.Definition.Name)
			fmt.Printf("Reduced chi-square: %.6g\n", snap.BaseChisq)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PARAMETER\tVALUE\tLOWER\tUPPER")
			for _, p := range snap.Parameters {
				fmt.Fprintf(w, "%s\t%.6g\t%g\t%g\n", p.Name, p.Value, p.Lower, p.Upper)
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func newBootstrapCmd() *cobra.Command {
	var flags fitFlags
	var numIteration int
	var bootstrapMethods []string
	var synth string
	var dist string
	var noiseStd float64
	var seed uint64

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Fit a model and bootstrap parameter uncertainty",
		Long: `Fit the model, refit it against synthetic observations drawn from the
fit, and store the parameter distributions.

Example: bootfit bootstrap --model chain.yaml --data observed.csv -n 1000 --synth residuals`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			kind, err := bootstrap.ParseSynthesizerKind(synth)
			if err != nil {
				return err
			}
			req.NumIteration = numIteration
			req.BootstrapMethods = bootstrapMethods
			req.Synthesizer = bootstrap.SynthesizerConfig{Kind: kind, Distribution: dist, Std: noiseStd, Seed: seed}
			req.Progress = func(completed, total int) {
				fmt.Fprintf(os.Stderr, "\r%d/%d iterations", completed, total)
			}

			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			out, err := c.Service.Run(cmd.Context(), req)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s (fingerprint %s) finished in %v\n", out.ID, out.Fingerprint.Short(),
				time.Duration(out.RuntimeMs)*time.Millisecond)
			fmt.Print(out.Result.String())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&numIteration, "iterations", "n", 1000, "Number of bootstrap iterations")
	cmd.Flags().StringSliceVar(&bootstrapMethods, "bootstrap-methods", nil, "Optimizer methods for refits (defaults to the fit methods)")
	cmd.Flags().StringVar(&synth, "synth", "residuals", "Synthesizer: residuals|distribution")
	cmd.Flags().StringVar(&dist, "dist", bootstrap.DistNormal, "Noise distribution for --synth distribution: normal|uniform|laplace")
	cmd.Flags().Float64Var(&noiseStd, "noise-std", 0.1, "Noise standard deviation for --synth distribution")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Random seed")
	return cmd
}

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored bootstrap runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			runs, err := c.Service.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODEL\tITERATIONS\tERRORS\tPARTIAL\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%s\n", r.ID, r.ModelName, r.NumIteration, r.ErrorCount,
					r.Partial, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			result, stored, err := c.Service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			meta := report.Meta{ModelName: stored.ModelName, CreatedAt: stored.CreatedAt}
			switch format {
			case "text":
				fmt.Print(result.String())
			case "md", "markdown":
				_, err = os.Stdout.Write(report.Markdown(result, meta))
			case "html":
				_, err = os.Stdout.Write(report.HTML(result, meta))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|md|html")
	return cmd
}

func newExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a stored run to a workbook or report file",
		Long: `Export a stored run. The output format follows the file extension:
.xlsx writes parameter samples and fitted trajectories, .md and .html write the report.

Example: bootfit export 7b1c2f3e-8d4a-4b5c-9e6f-0a1b2c3d4e5f -o run.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())

			result, stored, err := c.Service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = fmt.Sprintf("bootstrap_%s.xlsx", stored.ID)
			}
			if err := writeExport(outPath, result, report.Meta{ModelName: stored.ModelName, CreatedAt: stored.CreatedAt}); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.xlsx, .md or .html)")
	return cmd
}

func writeExport(path string, result *bootstrap.Result, meta report.Meta) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := excel.ExportResult(f, result); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case ".md":
		data = report.Markdown(result, meta)
	case ".html", ".htm":
		data = report.HTML(result, meta)
	default:
		return fmt.Errorf("unsupported export extension %q", filepath.Ext(path))
	}
	return os.WriteFile(path, data, 0644)
}
