// Package cli implements the `revis` command tree and the lipgloss-based
// table/status rendering the commands print: one command runs, prints its
// result, and exits, rather than an interactive session.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mu-hashmi/revis/internal/application"
	"github.com/mu-hashmi/revis/internal/domain/entity"
	apperrors "github.com/mu-hashmi/revis/pkg/errors"
)

// NewRootCommand builds the full `revis` command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "revis",
		Short:         "Revis — autonomous iteration engine for ML training campaigns",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCommand(),
		newLoopCommand(),
		newResumeCommand(),
		newStatusCommand(),
		newWatchCommand(),
		newLogsCommand(),
		newStopCommand(),
		newListCommand(),
		newShowCommand(),
		newExportCommand(),
		newDeleteCommand(),
	)
	return root
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold .revis/ and a default revis.yaml in the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.InitRepo(cwd()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), greenStyle.Render("✓")+" initialized .revis/ and revis.yaml")
			return nil
		},
	}
}

func newLoopCommand() *cobra.Command {
	var (
		name       string
		budgetVal  float64
		budgetType string
		baseline   string
		background bool
	)
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Start a new iteration session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return apperrors.NewInvalidInputError("--name is required")
			}

			if background {
				invocation := append([]string{"loop"}, passthroughArgs(cmd)...)
				app, err := application.NewApp(cwd())
				if err != nil {
					return err
				}
				defer app.Close()
				if err := app.LaunchBackground(invocation); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s started %q in the background; attach with `revis watch %s`\n",
					greenStyle.Render("✓"), name, name)
				return nil
			}

			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			budget := entity.Budget{Type: entity.BudgetRuns, Total: budgetVal}
			if budgetType == "time" {
				budget.Type = entity.BudgetTime
			}
			var baselinePtr *string
			if baseline != "" {
				baselinePtr = &baseline
			}

			session, err := app.StartSession(cmd.Context(), name, budget, baselinePtr)
			if err != nil {
				return err
			}

			log, err := app.SessionLogger(name)
			if err != nil {
				return err
			}
			defer log.Sync()

			orch, err := app.NewOrchestrator(log)
			if err != nil {
				return err
			}
			return runWithSignalHandling(cmd.Context(), orch, session)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "session name (required)")
	cmd.Flags().Float64Var(&budgetVal, "budget", 20, "budget total: run count or seconds, per --type")
	cmd.Flags().StringVar(&budgetType, "type", "runs", "budget unit: runs|time")
	cmd.Flags().StringVar(&baseline, "baseline", "", "baseline run id to compare against")
	cmd.Flags().BoolVar(&background, "background", false, "detach into a tmux session and return immediately")
	return cmd
}

// passthroughArgs reconstructs the flag slice for re-invocation under
// tmux, dropping --background itself.
func passthroughArgs(cmd *cobra.Command) []string {
	var out []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Name == "background" {
			return
		}
		out = append(out, "--"+f.Name, f.Value.String())
	})
	return out
}

// runWithSignalHandling runs one orchestrator session to completion,
// translating SIGINT/SIGTERM into cancellation of the run's context. The
// iteration in progress is interrupted, not finished, and the orchestrator
// ends the session as an iteration error.
func runWithSignalHandling(ctx context.Context, orch *application.Orchestrator, session *entity.Session) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := orch.Run(ctx, session)
	if ctx.Err() != nil && session.TerminationReason == nil {
		return ErrInterrupted
	}
	return err
}

// ErrInterrupted signals main to exit with code 130 (SIGINT convention).
var ErrInterrupted = fmt.Errorf("interrupted")

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <name>",
		Short: "Resume a failed or stopped session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.ResumeSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			log, err := app.SessionLogger(args[0])
			if err != nil {
				return err
			}
			defer log.Sync()

			orch, err := app.NewOrchestrator(log)
			if err != nil {
				return err
			}
			return runWithSignalHandling(cmd.Context(), orch, session)
		},
	}
}

func newStatusCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running session's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			render := func() error {
				session, err := app.Store.GetRunningSession(cmd.Context())
				if err != nil {
					return err
				}
				if session == nil {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no session is currently running"))
					return nil
				}
				return printSessionStatus(cmd, app, session)
			}

			if !watch {
				return render()
			}
			for {
				if err := render(); err != nil {
					return err
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(3 * time.Second):
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh every 3 seconds")
	return cmd
}

func printSessionStatus(cmd *cobra.Command, app *application.App, session *entity.Session) error {
	runs, err := app.Store.ListRuns(cmd.Context(), session.ID)
	if err != nil {
		return err
	}
	var lastRun *entity.Run
	var lastValue *float64
	if len(runs) > 0 {
		lastRun = runs[len(runs)-1]
		metrics, err := app.Store.ListMetrics(cmd.Context(), lastRun.ID)
		if err == nil {
			for _, m := range metrics {
				if m.Name == app.Cfg.Metric.Name {
					v := m.Value
					lastValue = &v
				}
			}
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), RenderSessionStatus(session, lastRun, app.Cfg.Metric.Name, lastValue))
	return nil
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <name>",
		Short: "Attach to a backgrounded session's multiplexed shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return application.AttachSession(args[0])
		},
	}
}

func newLogsCommand() *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Print (or follow) a session's iteration log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			path := app.SessionLogPath(args[0])
			if !follow {
				return printTail(cmd, path, lines)
			}
			return followFile(cmd.Context(), cmd, path)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the log as it grows")
	return cmd
}

func printTail(cmd *cobra.Command, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no log yet"))
			return nil
		}
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
	return nil
}

func followFile(ctx context.Context, cmd *cobra.Command, path string) error {
	if err := printTail(cmd, path, 50); err != nil {
		return err
	}
	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		if err != nil || info.Size() <= offset {
			f.Close()
			continue
		}
		buf := make([]byte, info.Size()-offset)
		if _, err := f.ReadAt(buf, offset); err == nil {
			fmt.Fprint(cmd.OutOrStdout(), string(buf))
		}
		offset = info.Size()
		f.Close()
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Request the running session to stop at the next iteration boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.RequestStop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), greenStyle.Render("✓")+" stop requested")
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			filter := "running"
			if all {
				filter = ""
			}
			sessions, err := app.Store.ListSessions(cmd.Context(), filter, 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderSessionTable(sessions))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include completed, failed, and stopped sessions")
	return cmd
}

func newShowCommand() *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a session's run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.Store.GetSessionByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if session == nil {
				return apperrors.NewNotFoundError(fmt.Sprintf("no session named %q", args[0]))
			}

			runs, err := app.Store.ListRuns(cmd.Context(), session.ID)
			if err != nil {
				return err
			}
			metricsByRun := make(map[string][]entity.Metric, len(runs))
			for _, r := range runs {
				ms, err := app.Store.ListMetrics(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				metricsByRun[r.ID] = ms
			}

			fmt.Fprintln(cmd.OutOrStdout(), RenderSessionTable([]*entity.Session{session}))
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), RenderRunTable(runs, app.Cfg.Metric.Name, metricsByRun))

			if trace {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("trace"))
				for _, r := range runs {
					entries, err := app.Store.ListTrace(cmd.Context(), r.ID)
					if err != nil {
						return err
					}
					for _, e := range entries {
						fmt.Fprintln(cmd.OutOrStdout(), RenderTraceEntry(e))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "include the full tool-call trace")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		noPR  bool
		force bool
		base  string
	)
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Push a session's branch and open a pull request summarizing its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			if noPR {
				session, err := app.Store.GetSessionByName(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if session == nil {
					return apperrors.NewNotFoundError(fmt.Sprintf("no session named %q", args[0]))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "branch %s left unpushed (--no-pr)\n", session.Branch)
				return nil
			}

			owner := os.Getenv("REVIS_GITHUB_OWNER")
			repo := os.Getenv("REVIS_GITHUB_REPO")
			token := os.Getenv("GITHUB_TOKEN")
			url, err := app.ExportSession(cmd.Context(), args[0], base, owner, repo, token, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s opened %s\n", greenStyle.Render("✓"), url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPR, "no-pr", false, "push nothing and skip the pull request")
	cmd.Flags().BoolVar(&force, "force", false, "re-export a session that was already exported")
	cmd.Flags().StringVar(&base, "base", "main", "base branch for the pull request")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	var (
		force      bool
		keepBranch bool
	)
	cmd := &cobra.Command{
		Use:   "delete <names...>",
		Short: "Delete one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.NewApp(cwd())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.DeleteSessions(cmd.Context(), args, force, keepBranch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", greenStyle.Render("✓"), strings.Join(args, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "allow deleting a running session")
	cmd.Flags().BoolVar(&keepBranch, "keep-branch", false, "leave the session's git branch in place")
	return cmd
}
