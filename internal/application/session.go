package application

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/entity"
	"github.com/mu-hashmi/revis/internal/domain/store"
	apperrors "github.com/mu-hashmi/revis/pkg/errors"

	"github.com/mu-hashmi/revis/internal/infrastructure/vcs"
)

// StartSession creates a new session: checks the single-running-session
// invariant, cuts a session branch off the current HEAD, and persists the
// Session row. The caller is responsible for invoking Orchestrator.Run.
func (a *App) StartSession(ctx context.Context, name string, budget entity.Budget, baselineRun *string) (*entity.Session, error) {
	if running, err := a.Store.GetRunningSession(ctx); err != nil {
		return nil, fmt.Errorf("check running session: %w", err)
	} else if running != nil {
		return nil, apperrors.NewPreconditionError(fmt.Sprintf("session %q is already running; stop it first", running.Name))
	}

	exists, err := a.Store.SessionNameExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check session name: %w", err)
	}
	if exists {
		return nil, apperrors.NewAlreadyExistsError(fmt.Sprintf("session %q already exists", name))
	}

	branch := vcs.BranchName(name)
	baseCommit, err := a.VCS.CreateSessionBranch(branch)
	if err != nil {
		return nil, fmt.Errorf("create session branch: %w", err)
	}

	session := &entity.Session{
		ID:          entity.NewID(),
		Name:        name,
		Branch:      branch,
		BaseCommit:  baseCommit,
		BaselineRun: baselineRun,
		Status:      entity.SessionRunning,
		StartedAt:   time.Now(),
		BudgetType:  budget.Type,
		BudgetTotal: budget.Total,
		RetryBudget: 3,
		HolderPID:   os.Getpid(),
	}
	if err := a.Store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return session, nil
}

// ResumeSession reopens a failed or stopped session: it checks out the
// session's branch and marks the session running under this process, then
// hands the caller a Session ready for another Orchestrator.Run call,
// which re-enters the ten-step protocol at step 1. Remaining budget is not
// computed here. A session whose status is still running, including one
// whose holder process has died, is refused.
func (a *App) ResumeSession(ctx context.Context, name string) (*entity.Session, error) {
	session, err := a.Store.GetSessionByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no session named %q", name))
	}
	if session.Status != entity.SessionFailed && session.Status != entity.SessionStopped {
		return nil, apperrors.NewPreconditionError(fmt.Sprintf("session %q is %s, not resumable", name, session.Status))
	}
	if running, err := a.Store.GetRunningSession(ctx); err != nil {
		return nil, fmt.Errorf("check running session: %w", err)
	} else if running != nil {
		return nil, apperrors.NewPreconditionError(fmt.Sprintf("session %q is already running; stop it first", running.Name))
	}

	if err := a.VCS.CheckoutBranch(session.Branch); err != nil {
		return nil, fmt.Errorf("checkout session branch %s: %w", session.Branch, err)
	}

	status := entity.SessionRunning
	pid := os.Getpid()
	if err := a.Store.UpdateSession(ctx, session.ID, store.SessionUpdate{Status: &status, HolderPID: &pid}); err != nil {
		return nil, fmt.Errorf("persist resumed session: %w", err)
	}
	session.Status = status
	session.TerminationReason = nil
	session.EndedAt = nil
	return session, nil
}

// DeleteSessions removes each named session's store rows (and, unless
// keepBranch is set, its git branch). A running session requires force.
func (a *App) DeleteSessions(ctx context.Context, names []string, force, keepBranch bool) error {
	for _, name := range names {
		session, err := a.Store.GetSessionByName(ctx, name)
		if err != nil {
			return fmt.Errorf("lookup session %s: %w", name, err)
		}
		if session == nil {
			return apperrors.NewNotFoundError(fmt.Sprintf("no session named %q", name))
		}
		if session.IsRunning() && !force {
			return apperrors.NewPreconditionError(fmt.Sprintf("session %q is running; pass --force to delete it", name))
		}
		if err := a.Store.DeleteSession(ctx, session.ID, force); err != nil {
			return fmt.Errorf("delete session %s: %w", name, err)
		}
		if !keepBranch {
			if err := a.deleteBranch(session.Branch); err != nil {
				a.Logger.Warn("failed to delete session branch", zap.String("branch", session.Branch), zap.Error(err))
			}
		}
	}
	return nil
}

// ExportSession pushes a session's branch and opens a pull request against
// base, summarizing the iteration history in the PR body.
func (a *App) ExportSession(ctx context.Context, name, base, owner, repo, token string, force bool) (string, error) {
	session, err := a.Store.GetSessionByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("no session named %q", name))
	}
	if session.ExportedAt != nil && !force {
		return "", apperrors.NewPreconditionError(fmt.Sprintf("session %q was already exported; pass --force to re-export", name))
	}

	runs, err := a.Store.ListRuns(ctx, session.ID)
	if err != nil {
		return "", fmt.Errorf("list runs: %w", err)
	}
	var finalMetric string
	if len(runs) > 0 {
		last := runs[len(runs)-1]
		if ms, err := a.Store.ListMetrics(ctx, last.ID); err == nil {
			for _, m := range ms {
				if m.Name == a.Cfg.Metric.Name {
					finalMetric = fmt.Sprintf("%.6g", m.Value)
				}
			}
		}
	}
	reason := "in-progress"
	if session.TerminationReason != nil {
		reason = string(*session.TerminationReason)
	}

	if err := vcs.Push(a.RepoRoot, session.Branch); err != nil {
		return "", fmt.Errorf("push session branch: %w", err)
	}

	hub := vcs.NewHub(token, owner, repo)
	body := vcs.BuildPullRequestBody(session.Name, len(runs), finalMetric, a.Cfg.Metric.Name, reason)
	title := fmt.Sprintf("Revis: %s", session.Name)
	url, err := hub.OpenPullRequest(ctx, session.Branch, base, title, body)
	if err != nil {
		return "", fmt.Errorf("open pull request: %w", err)
	}

	now := time.Now()
	if err := a.Store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		ExportedAt:     &now,
		PullRequestURL: &url,
	}); err != nil {
		a.Logger.Warn("failed to persist export state", zap.Error(err))
	}
	return url, nil
}

func (a *App) deleteBranch(branch string) error {
	current, err := a.VCS.CurrentBranch()
	if err != nil {
		return err
	}
	if current == branch {
		return fmt.Errorf("refusing to delete currently checked out branch %s", branch)
	}
	return a.VCS.DeleteBranch(branch)
}
