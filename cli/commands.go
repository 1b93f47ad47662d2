package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/contextgraph"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/monitor"
	"github.com/kbukum/chainkit/version"
)

func (a *App) executeChainCommand() *cobra.Command {
	var (
		contextJSON string
		exportGraph bool
		strict      bool
	)
	cmd := &cobra.Command{
		Use:   "execute-chain <chain>",
		Short: "Execute a chain from the catalog",
		Example: `  chainkit execute-chain DocumentationUpdate
  chainkit execute-chain DocumentationUpdate --context '{"ticket":"DOC-1"}' --export-graph`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseObject("context", contextJSON)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			graph := contextgraph.New()
			o, err := a.orchestrator(rt, strict, graph)
			if err != nil {
				return err
			}

			res, err := o.ExecuteChain(ctx, args[0], chain.NewContext(seed))
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if exportGraph {
				if err := a.exportGraph(cmd, rt, graph); err != nil {
					return err
				}
			}

			for _, alert := range res.PerformanceAlerts {
				fmt.Fprintf(cmd.ErrOrStderr(), "advisory: %s\n", alert.Message)
			}
			if res.Iteration != "" && !res.MetricsPersisted {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: metrics for %s were not persisted\n", res.Iteration)
			}
			return res.Err
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "initial context as a JSON object")
	cmd.Flags().BoolVar(&exportGraph, "export-graph", false, "export the context graph after execution")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat an unknown chain as an error")
	return cmd
}

func (a *App) executeModuleCommand() *cobra.Command {
	var (
		contextJSON string
		exportGraph bool
	)
	cmd := &cobra.Command{
		Use:   "execute-module <module>",
		Short: "Execute a single registered task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseObject("context", contextJSON)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			graph := contextgraph.New()
			o, err := a.orchestrator(rt, false, graph)
			if err != nil {
				return err
			}
			res, runErr := o.ExecuteModule(ctx, args[0], chain.NewContext(seed))
			if res.Task == "" {
				return runErr
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if exportGraph {
				if err := a.exportGraph(cmd, rt, graph); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "initial context as a JSON object")
	cmd.Flags().BoolVar(&exportGraph, "export-graph", false, "export the context graph after execution")
	return cmd
}

func (a *App) exportGraph(cmd *cobra.Command, rt *runtime, graph *contextgraph.Graph) error {
	paths, err := graph.Export(cmd.Context(), rt.store, contextgraph.DefaultDir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(cmd.ErrOrStderr(), "context graph exported to: %s\n", p)
	}
	return nil
}

func (a *App) monitorCommand() *cobra.Command {
	var (
		iteration   string
		metricsJSON string
		metricsFile string
		check       bool
		dashboard   bool
	)
	cmd := &cobra.Command{
		Use:   "monitor-performance",
		Short: "Record iteration metrics, check the budget and build the dashboard",
		Example: `  chainkit monitor-performance --iteration it-1 --metrics '{"inp_ms":180}' --check-compliance
  chainkit monitor-performance --iteration it-1 --check-compliance
  chainkit monitor-performance --generate-dashboard`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			update := metricsJSON != "" || metricsFile != ""
			if !update && !check && !dashboard {
				return errors.Configuration("monitor-performance", "nothing to do: pass --metrics, --metrics-file, --check-compliance or --generate-dashboard")
			}
			if (update || check) && iteration == "" {
				return errors.Configuration("iteration", "--iteration is required to record or check metrics")
			}
			metrics, err := readMetrics(metricsJSON, metricsFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)
			out := cmd.OutOrStdout()

			if update {
				if !rt.monitor.UpdateIterationMetrics(ctx, iteration, metrics) {
					return errors.Persistence(iteration, nil)
				}
				fmt.Fprintf(out, "metrics updated for iteration %s\n", iteration)
			}

			if check {
				if !update {
					archive, ok := rt.monitor.Sink().(monitor.Archive)
					if !ok {
						return errors.Configuration("monitor", "the metrics sink cannot load records")
					}
					rec, err := archive.Load(ctx, iteration)
					if err != nil {
						return errors.Configuration("iteration", fmt.Sprintf("no metrics recorded for %q", iteration)).WithCause(err)
					}
					metrics = rec.Metrics()
				}
				printCompliance(out, rt.monitor.CheckBudgetCompliance(metrics))
			}

			if dashboard {
				files, err := rt.monitor.Dashboard(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "dashboard generated with %d files:\n", len(files))
				for _, f := range files {
					fmt.Fprintf(out, "- %s\n", f)
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&iteration, "iteration", "", "iteration id")
	f.StringVar(&metricsJSON, "metrics", "", "metrics as a JSON object of numbers")
	f.StringVar(&metricsFile, "metrics-file", "", "JSON file of metrics, merged over --metrics")
	f.BoolVar(&check, "check-compliance", false, "evaluate the metrics against the budget")
	f.BoolVar(&dashboard, "generate-dashboard", false, "write the performance dashboard")
	return cmd
}

func printCompliance(w io.Writer, c monitor.Compliance) {
	if c.Compliant {
		fmt.Fprintln(w, "compliance: compliant")
		return
	}
	fmt.Fprintln(w, "compliance: non-compliant")
	for _, v := range c.Violations {
		fmt.Fprintf(w, "- %s\n", v.Message)
	}
}

func (a *App) visualizeCommand() *cobra.Command {
	var (
		runtimeContext string
		format         string
		output         string
	)
	cmd := &cobra.Command{
		Use:   "visualize-context",
		Short: "Render a runtime context as a JSON, markdown or HTML graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			graph := contextgraph.New()
			if runtimeContext != "" {
				data, err := os.ReadFile(runtimeContext)
				if err != nil {
					return errors.Configuration("runtime-context", err.Error()).WithCause(err)
				}
				values, err := parseObject("runtime-context", string(data))
				if err != nil {
					return err
				}
				graph.Update(values)
			}

			ctx := cmd.Context()
			rt, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			var p string
			switch format {
			case "json":
				p, err = graph.ExportJSON(ctx, rt.store, output)
			case "markdown":
				p, err = graph.ExportMarkdown(ctx, rt.store, output)
			case "html":
				p, err = graph.ExportHTML(ctx, rt.store, output)
			default:
				return errors.Configuration("format", fmt.Sprintf("unsupported format %q (json, markdown, html)", format))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "context graph exported to: %s\n", p)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&runtimeContext, "runtime-context", "", "JSON file holding the runtime context")
	f.StringVar(&format, "format", "html", "output format: json, markdown or html")
	f.StringVar(&output, "output", "", "storage path of the output file")
	return cmd
}

func (a *App) chainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the chains in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			catalog, err := chain.LoadCatalog(rt.cfg.Orchestrator.ChainsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range catalog.Names() {
				def, _ := catalog.Lookup(name)
				fmt.Fprintf(out, "%s: %s\n", name, describe(def))
			}
			return nil
		},
	}
}

// describe renders a definition as "A -> [B | C] -> D".
func describe(def chain.Definition) string {
	steps := def.Steps()
	if len(steps) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		if s.IsParallel() {
			parts[i] = "[" + strings.Join(s.TaskNames(), " | ") + "]"
		} else {
			parts[i] = s.Task()
		}
	}
	return strings.Join(parts, " -> ")
}

func (a *App) versionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// parseObject decodes a JSON object flag. An empty string is an empty object.
func parseObject(flag, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Configuration(flag, "expected a JSON object").WithCause(err)
	}
	if m == nil {
		return map[string]any{}, nil
	}
	return m, nil
}

func readMetrics(raw, file string) (map[string]float64, error) {
	metrics := map[string]float64{}
	if raw != "" {
		if err := decodeMetrics("metrics", []byte(raw), metrics); err != nil {
			return nil, err
		}
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Configuration("metrics-file", err.Error()).WithCause(err)
		}
		if err := decodeMetrics("metrics-file", data, metrics); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func decodeMetrics(flag string, data []byte, into map[string]float64) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Configuration(flag, "expected a JSON object of numbers").WithCause(err)
	}
	for k, v := range m {
		into[k] = v
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
