package executor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"go.uber.org/zap"
)

// RemoteConfig names the target host for RemoteExecutor.
type RemoteConfig struct {
	Host    string
	User    string
	Port    int
	KeyPath string
}

// RemoteExecutor runs commands on a remote host over SSH, using the same
// tmux-session-plus-sentinel-file protocol as LocalExecutor so the two
// backends behave identically from the orchestrator's point of view. The
// transport reconnects once on a transient fault; a second failure is
// propagated rather than retried again.
type RemoteExecutor struct {
	cfg     RemoteConfig
	workDir string
	logger  *zap.Logger

	mu     sync.Mutex
	client *ssh.Client
}

var _ Executor = (*RemoteExecutor)(nil)

// NewRemoteExecutor dials cfg.Host and returns an Executor rooted at
// workDir on the remote filesystem.
func NewRemoteExecutor(cfg RemoteConfig, workDir string, logger *zap.Logger) (*RemoteExecutor, error) {
	e := &RemoteExecutor{cfg: cfg, workDir: workDir, logger: logger}
	if err := e.dial(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *RemoteExecutor) dial() error {
	key, err := os.ReadFile(e.cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("read ssh key %s: %w", e.cfg.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parse ssh key: %w", err)
	}

	port := e.cfg.Port
	if port == 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- training hosts are short-lived and not yet known-hosts-pinned
		Timeout:         30 * time.Second,
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	e.mu.Lock()
	if e.client != nil {
		e.client.Close()
	}
	e.client = client
	e.mu.Unlock()
	return nil
}

// Reconnect re-dials the transport after a fault. Callers retry the failed
// operation once after a successful Reconnect; a second failure propagates.
func (e *RemoteExecutor) Reconnect(ctx context.Context) (bool, error) {
	if err := e.dial(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *RemoteExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// run executes command on the remote host, combining stdout+stderr, and
// retries once via Reconnect if the session could not be established (the
// signature of a dropped transport).
func (e *RemoteExecutor) run(ctx context.Context, command string) (string, error) {
	out, err := e.runOnce(command)
	if err == nil {
		return out, nil
	}
	if _, ok := err.(*ssh.ExitError); ok {
		return out, err
	}
	if _, rerr := e.Reconnect(ctx); rerr != nil {
		return "", fmt.Errorf("run %q after failed reconnect: %w", command, err)
	}
	return e.runOnce(command)
}

func (e *RemoteExecutor) runOnce(command string) (string, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return "", fmt.Errorf("ssh client not connected")
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new ssh session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	if err := session.Run(command); err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			return out.String(), err
		}
		return "", err
	}
	return out.String(), nil
}

func (e *RemoteExecutor) sentinelPath(sessionName string) string {
	return filepath.Join(e.workDir, ".revis", "exitcodes", sessionName)
}

func (e *RemoteExecutor) Launch(ctx context.Context, command string, env map[string]string, sessionName string) (string, error) {
	if running, _ := e.IsRunning(ctx, sessionName); running {
		if err := e.Kill(ctx, sessionName); err != nil {
			return "", fmt.Errorf("kill existing session %s: %w", sessionName, err)
		}
	}

	sentinel := e.sentinelPath(sessionName)
	if _, err := e.run(ctx, fmt.Sprintf("mkdir -p %s && rm -f %s", shellQuote(filepath.Dir(sentinel)), shellQuote(sentinel))); err != nil {
		return "", fmt.Errorf("prepare sentinel dir: %w", err)
	}

	var envPrefix strings.Builder
	for k, v := range env {
		fmt.Fprintf(&envPrefix, "export %s=%s; ", shellQuote(k), shellQuote(v))
	}
	wrapped := fmt.Sprintf("%s( %s ); echo $? > %s", envPrefix.String(), command, shellQuote(sentinel))

	tmuxCmd := fmt.Sprintf("tmux new-session -d -s %s -c %s bash -c %s",
		shellQuote(sessionName), shellQuote(e.workDir), shellQuote(wrapped))
	if _, err := e.run(ctx, tmuxCmd); err != nil {
		return "", fmt.Errorf("tmux new-session over ssh: %w", err)
	}
	e.logger.Info("launched remote training session", zap.String("session", sessionName), zap.String("host", e.cfg.Host))
	return sessionName, nil
}

func (e *RemoteExecutor) Wait(ctx context.Context, processID string, timeout time.Duration) (WaitResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		running, err := e.IsRunning(ctx, processID)
		if err != nil {
			return WaitResult{}, err
		}
		if !running {
			return e.readSentinel(ctx, processID), nil
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

func (e *RemoteExecutor) readSentinel(ctx context.Context, sessionName string) WaitResult {
	out, err := e.run(ctx, fmt.Sprintf("cat %s", shellQuote(e.sentinelPath(sessionName))))
	if err != nil {
		return WaitResult{Failed: true, Error: "exit code unavailable"}
	}
	code, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return WaitResult{Failed: true, Error: "exit code unavailable"}
	}
	return WaitResult{ExitCode: code, Failed: code != 0}
}

func (e *RemoteExecutor) Kill(ctx context.Context, processID string) error {
	_, _ = e.run(ctx, fmt.Sprintf("tmux kill-session -t %s", shellQuote(processID)))
	return nil
}

func (e *RemoteExecutor) IsRunning(ctx context.Context, processID string) (bool, error) {
	_, err := e.run(ctx, fmt.Sprintf("tmux has-session -t %s", shellQuote(processID)))
	return err == nil, nil
}

func (e *RemoteExecutor) GetLogTail(ctx context.Context, processID, path string, lines int) (string, error) {
	if exists, _ := e.FileExists(ctx, path); exists {
		return e.run(ctx, fmt.Sprintf("tail -n %d %s", lines, shellQuote(path)))
	}
	return e.run(ctx, fmt.Sprintf("tmux capture-pane -t %s -p", shellQuote(processID)))
}

// SyncCode pushes localPath to remotePath over SFTP-free rsync-over-ssh,
// incrementally and without deleting files absent locally: a file removed
// on the orchestrator's machine but still present on the training host is
// left alone rather than treated as a deletion to propagate. Source-control
// ignored paths, the hidden Revis directory, the source-control database,
// and language-runtime caches are excluded so the sync stays small.
func (e *RemoteExecutor) SyncCode(ctx context.Context, localPath, remotePath string) error {
	excludes := []string{".git", ".revis", "__pycache__", "*.pyc", "node_modules", ".venv", "venv"}
	args := []string{"rsync", "-az", "--no-delete", "--filter", ":- .gitignore"}
	for _, pattern := range excludes {
		args = append(args, "--exclude", pattern)
	}

	port := e.cfg.Port
	if port == 0 {
		port = 22
	}
	args = append(args,
		"-e", fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=no", e.cfg.KeyPath, port),
		localPath+"/",
		fmt.Sprintf("%s@%s:%s/", e.cfg.User, e.cfg.Host, remotePath),
	)

	// rsync runs locally (it drives the remote side over its own ssh
	// invocation); this is the one operation the remote backend performs
	// from the orchestrator's machine rather than through e.run.
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync code to %s: %w: %s", e.cfg.Host, err, stderr.String())
	}
	return nil
}

func (e *RemoteExecutor) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := e.run(ctx, fmt.Sprintf("test -e %s", shellQuote(path)))
	return err == nil, nil
}

func (e *RemoteExecutor) ReadFile(ctx context.Context, path string) (string, error) {
	return e.run(ctx, fmt.Sprintf("cat %s", shellQuote(path)))
}

func (e *RemoteExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return fmt.Errorf("ssh client not connected")
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("new ssh session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	if err := session.Run(fmt.Sprintf("cat %s", shellQuote(remotePath))); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return os.WriteFile(localPath, out.Bytes(), 0o644)
}

func (e *RemoteExecutor) CollectArtifacts(ctx context.Context, patterns []string, since time.Time, localDestination string) ([]string, error) {
	var found []string
	for _, pattern := range patterns {
		remoteGlob := filepath.Join(e.workDir, pattern)
		out, err := e.run(ctx, fmt.Sprintf(
			"find %s -newermt %s -type f 2>/dev/null || true",
			shellQuote(filepath.Dir(remoteGlob)), shellQuote(since.UTC().Format(time.RFC3339))))
		if err != nil {
			continue
		}
		for _, remotePath := range strings.Split(strings.TrimSpace(out), "\n") {
			if remotePath == "" {
				continue
			}
			localPath := filepath.Join(localDestination, filepath.Base(remotePath))
			if err := e.DownloadFile(ctx, remotePath, localPath); err != nil {
				continue
			}
			found = append(found, localPath)
		}
	}
	return found, nil
}
