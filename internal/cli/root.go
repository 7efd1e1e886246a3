// Package cli implements the docdesk command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/app"
	"github.com/and161185/docdesk/internal/config"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/logging"
	"github.com/and161185/docdesk/internal/service"
)

// BuildInfo is stamped by the linker.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// Options customize the command tree; zero values mean production defaults.
type Options struct {
	Build BuildInfo
	// App overrides collaborators when the app is built.
	App app.Options
}

type runner struct {
	opts Options

	cfgPath  string
	baseURL  string
	stateDir string
	stateDSN string
	logLevel string
	logDir   string
	timeout  time.Duration
	jsonOut  bool

	app      *app.App
	closeLog func()
}

// NewRootCmd builds the full command tree.
func NewRootCmd(opts Options) *cobra.Command {
	r := &runner{opts: opts}
	root := &cobra.Command{
		Use:           "docdesk",
		Short:         "Terminal client for the document management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&r.cfgPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&r.baseURL, "base-url", "", "backend base URL")
	pf.StringVar(&r.stateDir, "state-dir", "", "local state directory")
	pf.StringVar(&r.stateDSN, "state-dsn", "", "postgres DSN for shared client state")
	pf.StringVar(&r.logLevel, "log-level", "", "debug|info|warn|error")
	pf.StringVar(&r.logDir, "log-dir", "", "write logs to timestamped files in this directory")
	pf.DurationVar(&r.timeout, "timeout", 0, "per-request timeout")
	pf.BoolVar(&r.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		r.versionCmd(),
		r.healthCmd(),
		r.registerCmd(),
		r.loginCmd(),
		r.logoutCmd(),
		r.whoamiCmd(),
		r.listCmd(),
		r.getCmd(),
		r.downloadCmd(),
		r.uploadCmd(),
		r.searchCmd(),
		r.logsCmd(),
		r.tuiCmd(),
	)
	return root
}

// Execute runs the tree against os.Args and returns the process exit code.
func Execute(ctx context.Context, opts Options) int {
	root := NewRootCmd(opts)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", Message(err))
		return 1
	}
	return 0
}

// Message is the one-line text shown for err.
func Message(err error) string {
	for _, target := range []error{errs.ErrUnauthorized, errs.ErrValidation, errs.ErrRequest, errs.ErrTransport, errs.ErrRateLimited} {
		if errors.Is(err, target) {
			return errs.UserMessage(err)
		}
	}
	return err.Error()
}

// setup loads configuration, overlays flags and wires the app. Commands
// needing the backend call it from RunE.
func (r *runner) setup(cmd *cobra.Command) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	cfg, err := config.Load(r.cfgPath)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("base-url") {
		cfg.BaseURL = r.baseURL
	}
	if f.Changed("state-dir") {
		cfg.StateDir = r.stateDir
	}
	if f.Changed("state-dsn") {
		cfg.StateDSN = r.stateDSN
	}
	if f.Changed("log-level") {
		cfg.LogLevel = r.logLevel
	}
	if f.Changed("log-dir") {
		cfg.LogDir = r.logDir
	}
	if f.Changed("timeout") {
		cfg.Timeout = r.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, closeLog, err := logging.Open(cfg.LogLevel, cfg.LogDir, cfg.LogMaxFiles, time.Now())
	if err != nil {
		return nil, err
	}
	r.closeLog = closeLog

	opts := r.opts.App
	if opts.Logger == nil {
		opts.Logger = log
	}
	a, err := app.New(cmd.Context(), cfg, opts)
	if err != nil {
		closeLog()
		r.closeLog = nil
		return nil, err
	}
	a.Log.Debug("started", zap.String("command", cmd.Name()), zap.String("version", r.opts.Build.Version))
	r.app = a
	return a, nil
}

// withApp wires the app for one command, prints its notifications to stderr
// and releases it when fn returns.
func (r *runner) withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := r.setup(cmd)
		if err != nil {
			return err
		}
		defer r.close()
		w := cmd.ErrOrStderr()
		a.Subscribe(func(n service.Notification) {
			fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
		})
		return fn(cmd, args, a)
	}
}

func (r *runner) close() {
	if r.app != nil {
		r.app.Close()
		r.app = nil
	}
	if r.closeLog != nil {
		r.closeLog()
		r.closeLog = nil
	}
}

// requireLogin fails fast when no token is held.
func requireLogin(a *app.App) error {
	if !a.Session.Snapshot().Authenticated() {
		return errors.New("not logged in; run `docdesk login` first")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
