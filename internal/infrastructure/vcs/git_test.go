package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func newTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	raw, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("lr: 0.01\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	wt, err := raw.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("."); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("initial commit: %v", err)
	}

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return repo, dir
}

func TestCreateSessionBranchAndCommit(t *testing.T) {
	repo, dir := newTestRepo(t)

	base, err := repo.CreateSessionBranch(BranchName("my-session"))
	if err != nil {
		t.Fatalf("create session branch: %v", err)
	}
	if base == "" {
		t.Fatal("expected non-empty base commit")
	}

	branch, err := repo.CurrentBranch()
	if err != nil || branch != "revis/my-session" {
		t.Fatalf("expected checked out onto session branch, got %q, err=%v", branch, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("lr: 0.02\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	hash, changed, err := repo.CommitAll("Revis iteration 1: lower learning rate", "revis", "revis@local")
	if err != nil {
		t.Fatalf("commit all: %v", err)
	}
	if !changed || hash == "" {
		t.Fatalf("expected a commit to be made, changed=%v hash=%q", changed, hash)
	}

	clean, err := repo.IsClean()
	if err != nil || !clean {
		t.Fatalf("expected clean worktree after commit, clean=%v err=%v", clean, err)
	}
}

func TestCommitAllNoChangesIsNoop(t *testing.T) {
	repo, _ := newTestRepo(t)
	hash, changed, err := repo.CommitAll("Revis iteration 1: noop", "revis", "revis@local")
	if err != nil {
		t.Fatalf("commit all: %v", err)
	}
	if changed || hash != "" {
		t.Fatalf("expected no-op commit on clean worktree, changed=%v hash=%q", changed, hash)
	}
}

func TestIsAncestor(t *testing.T) {
	repo, _ := newTestRepo(t)
	base, err := repo.HeadCommit()
	if err != nil {
		t.Fatalf("head commit: %v", err)
	}

	if _, err := repo.CreateSessionBranch(BranchName("anc")); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	descendant, err := repo.HeadCommit()
	if err != nil {
		t.Fatalf("head commit: %v", err)
	}

	ok, err := repo.IsAncestor(base, descendant)
	if err != nil {
		t.Fatalf("is ancestor: %v", err)
	}
	if !ok {
		t.Fatal("expected base commit to be an ancestor of the branch head")
	}
}
