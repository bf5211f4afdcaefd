package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// LocalExecutor runs commands on the current host, using the real tmux
// binary for the detachable multiplexed session so training survives an
// orchestrator restart and can be attached to with `tmux attach`.
type LocalExecutor struct {
	workDir string
	logger  *zap.Logger
}

// NewLocalExecutor builds an Executor rooted at workDir (the repository
// root, typically).
func NewLocalExecutor(workDir string, logger *zap.Logger) *LocalExecutor {
	return &LocalExecutor{workDir: workDir, logger: logger}
}

var _ Executor = (*LocalExecutor)(nil)

func (e *LocalExecutor) sentinelPath(sessionName string) string {
	return filepath.Join(e.workDir, ".revis", "exitcodes", sessionName)
}

// Launch wraps command so its combined stdout+stderr duplicates to the
// iteration log and its exit code lands in the sentinel file, then starts
// it inside a fresh tmux session.
func (e *LocalExecutor) Launch(ctx context.Context, command string, env map[string]string, sessionName string) (string, error) {
	if running, _ := e.IsRunning(ctx, sessionName); running {
		if err := e.Kill(ctx, sessionName); err != nil {
			return "", fmt.Errorf("kill existing session %s: %w", sessionName, err)
		}
	}

	sentinel := e.sentinelPath(sessionName)
	if err := os.MkdirAll(filepath.Dir(sentinel), 0o755); err != nil {
		return "", fmt.Errorf("create sentinel dir: %w", err)
	}
	_ = os.Remove(sentinel)

	var envPrefix strings.Builder
	for k, v := range env {
		fmt.Fprintf(&envPrefix, "export %s=%s; ", shellQuote(k), shellQuote(v))
	}

	wrapped := fmt.Sprintf("%s( %s ); echo $? > %s", envPrefix.String(), command, shellQuote(sentinel))

	cmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", sessionName, "-c", e.workDir, "bash", "-c", wrapped)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux new-session: %w", err)
	}
	e.logger.Info("launched training session", zap.String("session", sessionName))
	return sessionName, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (e *LocalExecutor) Wait(ctx context.Context, processID string, timeout time.Duration) (WaitResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		running, err := e.IsRunning(ctx, processID)
		if err != nil {
			return WaitResult{}, err
		}
		if !running {
			return e.readSentinel(processID), nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			_ = e.Kill(ctx, processID)
			return WaitResult{Failed: true, Error: "run exceeded timeout"}, nil
		}
		select {
		case <-ctx.Done():
			return WaitResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *LocalExecutor) readSentinel(sessionName string) WaitResult {
	data, err := os.ReadFile(e.sentinelPath(sessionName))
	if err != nil {
		return WaitResult{Failed: true, Error: "exit code unavailable"}
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return WaitResult{Failed: true, Error: "exit code unavailable"}
	}
	return WaitResult{ExitCode: code, Failed: code != 0}
}

func (e *LocalExecutor) Kill(ctx context.Context, processID string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", processID)
	_ = cmd.Run() // idempotent: killing an absent session is not an error
	return nil
}

func (e *LocalExecutor) IsRunning(ctx context.Context, processID string) (bool, error) {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", processID)
	err := cmd.Run()
	return err == nil, nil
}

func (e *LocalExecutor) GetLogTail(ctx context.Context, processID, path string, lines int) (string, error) {
	if exists, _ := e.FileExists(ctx, path); exists {
		return tailFile(path, lines)
	}
	out, err := exec.CommandContext(ctx, "tmux", "capture-pane", "-t", processID, "-p").Output()
	if err != nil {
		return "", fmt.Errorf("capture-pane %s: %w", processID, err)
	}
	return string(out), nil
}

func tailFile(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n"), nil
}

// SyncCode is a no-op on the local backend: training runs directly against
// the working tree.
func (e *LocalExecutor) SyncCode(ctx context.Context, localPath, remotePath string) error {
	return nil
}

func (e *LocalExecutor) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (e *LocalExecutor) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *LocalExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	src, err := os.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func (e *LocalExecutor) CollectArtifacts(ctx context.Context, patterns []string, since time.Time, localDestination string) ([]string, error) {
	var found []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(e.workDir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.ModTime().Before(since) {
				continue
			}
			found = append(found, m)
		}
	}
	return found, nil
}

func (e *LocalExecutor) Reconnect(ctx context.Context) (bool, error) { return true, nil }
func (e *LocalExecutor) Close() error                                { return nil }
