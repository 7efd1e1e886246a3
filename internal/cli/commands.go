package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/and161185/docdesk/internal/app"
	"github.com/and161185/docdesk/internal/model"
	"github.com/and161185/docdesk/internal/render"
	"github.com/and161185/docdesk/internal/service"
)

func (r *runner) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), r.opts.Build)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "docdesk %s (%s)\n", r.opts.Build.Version, r.opts.Build.BuildDate)
			return nil
		},
	}
}

func (r *runner) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is up",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			h, err := a.Gateway.Health(cmd.Context())
			if err != nil {
				return err
			}
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  indexed=%d mappings=%d\n", h.Status, h.IndexedDocuments, h.TotalMappings)
			return nil
		}),
	}
}

// lines reads successive lines from the command input for secrets not passed as flags.
type lines struct{ sc *bufio.Scanner }

func (l *lines) next(what string) (string, error) {
	if !l.sc.Scan() {
		if err := l.sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%s: no input", what)
	}
	return strings.TrimRight(l.sc.Text(), "\r"), nil
}

func (r *runner) registerCmd() *cobra.Command {
	var reg model.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  "Create an account. Password and confirmation not given as flags are read from stdin, one per line.",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			in := &lines{sc: bufio.NewScanner(cmd.InOrStdin())}
			var err error
			if reg.Password == "" {
				if reg.Password, err = in.next("password"); err != nil {
					return err
				}
			}
			if reg.Confirm == "" {
				if reg.Confirm, err = in.next("confirm"); err != nil {
					return err
				}
			}
			if err := a.Session.Register(cmd.Context(), reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. You can log in now.\n", strings.TrimSpace(reg.Username))
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&reg.Username, "username", "u", "", "username")
	f.StringVarP(&reg.Password, "password", "p", "", "password")
	f.StringVar(&reg.Confirm, "confirm", "", "password confirmation")
	f.StringVar(&reg.Role, "role", "", "one of "+strings.Join(model.Roles, ", "))
	return cmd
}

func (r *runner) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if password == "" {
				p, err := (&lines{sc: bufio.NewScanner(cmd.InOrStdin())}).next("password")
				if err != nil {
					return err
				}
				password = p
			}
			if _, err := a.Session.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			snap := a.Session.Snapshot()
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"user": snap.User, "expires_at": snap.ExpiresAt})
			}
			who := strings.TrimSpace(username)
			if snap.User != nil {
				who = fmt.Sprintf("%s (%s)", snap.User.Username, snap.User.Role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", who)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current session",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if err := a.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func (r *runner) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			p, err := a.Session.Profile(cmd.Context())
			if err != nil {
				return err
			}
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  role=%s  uuid=%s\n", p.Username, p.Role, p.UUID)
			return nil
		}),
	}
}

func (r *runner) listCmd() *cobra.Command {
	var f model.Filter
	var dateRange string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents visible to you",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			rng, err := parseRange(dateRange)
			if err != nil {
				return err
			}
			f.Range = rng
			if err := a.Docs.LoadAll(cmd.Context()); err != nil {
				return err
			}
			snap := a.Docs.ShowFiltered(f)
			return r.printDocs(cmd.OutOrStdout(), snap.View)
		}),
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "only this category")
	cmd.Flags().StringVar(&f.Author, "author", "", "only this author")
	cmd.Flags().StringVar(&dateRange, "date", string(model.RangeAll), "all|today|week|month")
	return cmd
}

func parseRange(s string) (model.DateRange, error) {
	for _, r := range model.DateRanges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid --date %q", s)
}

func (r *runner) printDocs(w io.Writer, docs []model.Document) error {
	if r.jsonOut {
		if docs == nil {
			docs = []model.Document{}
		}
		return printJSON(w, docs)
	}
	_, err := fmt.Fprintln(w, render.Table(render.Rows(docs)))
	return err
}

func (r *runner) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			d, err := a.Docs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Detail(d))
			return nil
		}),
	}
}

func (r *runner) downloadCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save a document's original file",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			path, err := a.Docs.Download(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "destination directory")
	return cmd
}

func (r *runner) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload PDF, DOCX or plain-text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			files := make([]service.UploadFile, 0, len(args))
			for _, p := range args {
				files = append(files, localFile(p))
			}
			res := a.Uploader.Upload(cmd.Context(), files)
			if r.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), res.Uploaded); err != nil {
					return err
				}
			} else {
				for _, t := range res.Tasks {
					fmt.Fprintln(cmd.OutOrStdout(), render.Task(t, 20))
				}
			}
			if res.Stale {
				return service.ErrSessionChanged
			}
			if failed := len(res.Tasks) - len(res.Uploaded); failed > 0 {
				return fmt.Errorf("%d of %d files not uploaded", failed, len(res.Tasks))
			}
			return nil
		}),
	}
}

func localFile(path string) service.UploadFile {
	f := service.UploadFile{
		Name:        path,
		ContentType: service.DetectType(path),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}
	if st, err := os.Stat(path); err == nil {
		f.Name = st.Name()
		f.Size = st.Size()
	}
	return f
}

func (r *runner) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			q := strings.TrimSpace(strings.Join(args, " "))
			if n := a.Config.SearchMinLength; utf8.RuneCountInString(q) < n {
				return fmt.Errorf("query must be at least %d characters", n)
			}
			docs, err := a.Searcher.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return r.printDocs(cmd.OutOrStdout(), docs)
		}),
	}
}

func (r *runner) logsCmd() *cobra.Command {
	var skip, limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show document access logs (HR and Admin)",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			logs, err := a.Docs.AccessLogs(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}
			if r.jsonOut {
				return printJSON(cmd.OutOrStdout(), logs)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(render.Logs(logs), "\n"))
			return nil
		}),
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records")
	return cmd
}
