package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yourusername/vgrab-go/internal/domain"
)

const (
	serverBinaryName   = "vgrab-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// serverLauncher starts a local vgrab-server when the API does not answer
type serverLauncher struct {
	baseURL    string
	binary     string // configured path; empty searches next to the CLI and on PATH
	configFile string // passed on as -config
	logPath    string // server stdout and stderr

	client     *http.Client
	lookPath   func(string) (string, error)
	executable func() (string, error)
}

func newServerLauncher(config *domain.Config, baseURL, configFile string) *serverLauncher {
	l := &serverLauncher{
		baseURL:    baseURL,
		binary:     config.Server.Binary,
		configFile: configFile,
		client:     &http.Client{Timeout: time.Second},
		lookPath:   exec.LookPath,
		executable: os.Executable,
	}
	if config.Logging.LogsDir != "" {
		l.logPath = filepath.Join(config.Logging.LogsDir, serverBinaryName+".out")
	}
	return l
}

// serverAddress is the URL the CLI uses for a server listening per config
func serverAddress(config *domain.Config) string {
	host := config.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(config.Server.Port))
}

// ready reports whether the server answers /ready, which also checks job storage
func (l *serverLauncher) ready() bool {
	resp, err := l.client.Get(l.baseURL + "/ready")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findBinary resolves the server executable. A configured path must exist;
// otherwise the directory of the running CLI is tried before PATH.
func (l *serverLauncher) findBinary() (string, error) {
	if l.binary != "" {
		if _, err := os.Stat(l.binary); err != nil {
			return "", fmt.Errorf("configured server binary: %w", err)
		}
		return l.binary, nil
	}

	if exe, err := l.executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), serverBinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := l.lookPath(serverBinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found next to the CLI or on PATH (set server.binary)", serverBinaryName)
}

// start launches the server detached from this process
func (l *serverLauncher) start() error {
	path, err := l.findBinary()
	if err != nil {
		return err
	}

	var args []string
	if l.configFile != "" {
		args = append(args, "-config", l.configFile)
	}
	cmd := exec.Command(path, args...)

	if l.logPath != "" {
		if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
			return fmt.Errorf("failed to create server log directory: %w", err)
		}
		out, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open server log: %w", err)
		}
		defer out.Close()
		cmd.Stdout = out
		cmd.Stderr = out
	}
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", path, err)
	}
	return cmd.Process.Release()
}

// waitReady polls /ready until it answers or ctx ends
func (l *serverLauncher) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()

	for {
		if l.ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server at %s did not become ready: %w", l.baseURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ensure starts the server unless it already answers
func (l *serverLauncher) ensure(ctx context.Context, out io.Writer) error {
	if l.ready() {
		return nil
	}

	fmt.Fprintln(out, "Server not running, starting...")
	if err := l.start(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, serverStartTimeout)
	defer cancel()
	if err := l.waitReady(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "Server started")
	return nil
}
