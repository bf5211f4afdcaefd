// Package executor implements the uniform local/remote abstraction over a
// detachable multiplexed shell session that outlives the orchestrator
// process: training survives orchestrator restarts and can be attached to.
package executor

import (
	"context"
	"time"
)

// WaitResult is what Wait reports once a session finishes or times out.
type WaitResult struct {
	ExitCode int
	Failed   bool
	Error    string
}

// Executor is the Executor component from the component table: launch,
// wait, kill, tail logs, sync code, and simple remote file access, all
// backed by a named multiplexed session so training keeps running across
// orchestrator restarts.
type Executor interface {
	// Launch starts command inside a fresh session named sessionName,
	// exporting env first. If a session of that name already exists it is
	// killed and recreated. Returns sessionName as the process identifier.
	Launch(ctx context.Context, command string, env map[string]string, sessionName string) (string, error)

	// Wait polls at >= 2 second intervals until the session no longer
	// exists or timeout elapses, then reads the sentinel exit-code file.
	Wait(ctx context.Context, processID string, timeout time.Duration) (WaitResult, error)

	// Kill idempotently terminates the session.
	Kill(ctx context.Context, processID string) error

	// IsRunning reports whether the multiplexed session still exists.
	IsRunning(ctx context.Context, processID string) (bool, error)

	// GetLogTail returns the last n lines of path, falling back to the
	// session's captured screen content when path does not exist.
	GetLogTail(ctx context.Context, processID, path string, lines int) (string, error)

	// SyncCode performs an incremental, deletion-safe sync of localPath to
	// remotePath. A no-op on the local backend.
	SyncCode(ctx context.Context, localPath, remotePath string) error

	FileExists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) (string, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) error

	// CollectArtifacts returns local paths of files matching patterns that
	// were modified after since.
	CollectArtifacts(ctx context.Context, patterns []string, since time.Time, localDestination string) ([]string, error)

	// Reconnect re-establishes the transport after a fault; a no-op on the
	// local backend. Close releases any held transport.
	Reconnect(ctx context.Context) (bool, error)
	Close() error
}
