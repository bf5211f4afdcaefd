// Package vcs implements the orchestrator's version-control operations:
// session branch management and iteration commits over go-git, plus the
// push/PR export path in github.go.
package vcs

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SessionBranchPrefix names the branch convention every session uses:
// revis/<session-name>.
const SessionBranchPrefix = "revis/"

// BranchName derives a session's branch name from its human name.
func BranchName(sessionName string) string {
	return SessionBranchPrefix + sessionName
}

// Repo wraps the repository the orchestrator owns for the duration of a
// session: one branch checked out at a time, one writer.
type Repo struct {
	root string
	repo *git.Repository
}

// Open opens the repository rooted at root (the orchestrator's working
// directory).
func Open(root string) (*Repo, error) {
	r, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", root, err)
	}
	return &Repo{root: root, repo: r}, nil
}

// CurrentBranch returns the short name of the branch HEAD currently points
// to, used so termination can restore it.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return head.Name().Short(), nil
}

// HeadCommit returns the full hash HEAD currently points to.
func (r *Repo) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CreateSessionBranch creates branch from the commit currently checked out,
// then checks it out, returning the base commit hash it was cut from. It
// returns an error if the branch already exists.
func (r *Repo) CreateSessionBranch(branch string) (baseCommit string, err error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true, Hash: head.Hash()}); err != nil {
		return "", fmt.Errorf("create branch %s: %w", branch, err)
	}
	return head.Hash().String(), nil
}

// CheckoutBranch switches the worktree to an already-existing branch, used
// by resume to re-enter a session.
func (r *Repo) CheckoutBranch(branch string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branch, err)
	}
	return nil
}

// CommitAll stages every working-tree change and commits it with message,
// returning the new commit hash. changed is false when the worktree was
// already clean, in which case no commit is made.
func (r *Repo) CommitAll(message, authorName, authorEmail string) (hash string, changed bool, err error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", false, fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", false, fmt.Errorf("read worktree status: %w", err)
	}
	if status.IsClean() {
		return "", false, nil
	}

	if _, err := wt.Add("."); err != nil {
		return "", false, fmt.Errorf("stage changes: %w", err)
	}

	commit, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
	})
	if err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return commit.String(), true, nil
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant, walking all of descendant's history (every parent of merges).
func (r *Repo) IsAncestor(ancestor, descendant string) (bool, error) {
	descHash := plumbing.NewHash(descendant)
	ancHash := plumbing.NewHash(ancestor)
	if descHash == ancHash {
		return true, nil
	}
	commit, err := r.repo.CommitObject(descHash)
	if err != nil {
		return false, fmt.Errorf("load commit %s: %w", descendant, err)
	}

	found := false
	walkErr := object.NewCommitPreorderIter(commit, nil, nil).ForEach(func(c *object.Commit) error {
		if c.Hash == ancHash {
			found = true
		}
		return nil
	})
	if walkErr != nil {
		return false, fmt.Errorf("walk commit history: %w", walkErr)
	}
	return found, nil
}

// Stash shelves uncommitted changes before the orchestrator abandons a
// partial iteration. go-git does not implement the stash plumbing, so this
// shells out to the git binary the way LocalExecutor shells out to tmux.
func (r *Repo) Stash() error {
	cmd := exec.Command("git", "stash", "push", "--include-untracked", "-m", "revis: partial iteration")
	cmd.Dir = r.root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git stash: %w: %s", err, out)
	}
	return nil
}

// StashPop restores the most recent stash. Resuming a session does not call
// it, so changes stashed from an interrupted iteration stay in the stash.
func (r *Repo) StashPop() error {
	cmd := exec.Command("git", "stash", "pop")
	cmd.Dir = r.root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git stash pop: %w: %s", err, out)
	}
	return nil
}

// DeleteBranch removes a local branch reference, used by `revis delete`
// unless --keep-branch is passed. The caller must ensure branch is not the
// currently checked out one.
func (r *Repo) DeleteBranch(branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.RemoveReference(ref); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

// IsClean reports whether the worktree has no uncommitted changes.
func (r *Repo) IsClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("read worktree status: %w", err)
	}
	return status.IsClean(), nil
}
