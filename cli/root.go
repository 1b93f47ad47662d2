package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/version"
)

// App holds the global flags and the streams commands write to.
type App struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	chainsFile string
	budgetFile string
	debug      bool

	registerTasks []func(*chain.Registry) error
}

// Option configures an App.
type Option func(*App)

// WithTasks registers real task implementations before the catalog's
// declared tasks are filled in. Tasks registered here take precedence.
func WithTasks(register func(*chain.Registry) error) Option {
	return func(a *App) { a.registerTasks = append(a.registerTasks, register) }
}

// NewApp creates an App writing results to stdout and diagnostics to stderr.
func NewApp(stdout, stderr io.Writer, opts ...Option) *App {
	a := &App{stdout: stdout, stderr: stderr}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chainkit",
		Short:         "Run task chains and track their performance budget",
		Version:       version.Get().Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate(version.Get().String() + "\n")
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: chainkit.yml in the usual locations)")
	pf.StringVar(&a.chainsFile, "chains", "", "chain catalog file, overrides orchestrator.chains_file")
	pf.StringVar(&a.budgetFile, "budget", "", "execution budget file, overrides monitor.budget_file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.executeChainCommand(),
		a.executeModuleCommand(),
		a.monitorCommand(),
		a.visualizeCommand(),
		a.chainsCommand(),
		a.versionCommand(),
	)
	return root
}

// Run executes args and returns the process exit code. SIGINT and SIGTERM
// cancel the running command.
func (a *App) Run(ctx context.Context, args []string) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.RootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(a.stderr, "Error:", err)
	if a.debug {
		a.printEnvelope(err)
	}
	return exitCode(err)
}

// printEnvelope writes the structured form of err for scripts and bug reports.
func (a *App) printEnvelope(err error) {
	data, mErr := json.MarshalIndent(errors.From(err).ToResponse(), "", "  ")
	if mErr != nil {
		return
	}
	fmt.Fprintln(a.stderr, string(data))
}

// Execute runs the CLI against the process arguments and streams.
func Execute(opts ...Option) int {
	return NewApp(os.Stdout, os.Stderr, opts...).Run(context.Background(), os.Args[1:])
}

func exitCode(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}
