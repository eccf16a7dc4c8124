//go:build integration

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 2 * time.Minute

// binPath is the docsync binary built once per test binary.
var binPath string

// buildAndRun compiles docsync into a scratch directory and runs the tests.
func buildAndRun(m *testing.M) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	root, err := moduleRoot(ctx)
	if err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp("", "docsync-integration-*")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	binPath = filepath.Join(dir, "docsync")
	build := exec.CommandContext(ctx, "go", "build", "-o", binPath, "./cmd/docsync")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("build docsync: %w\n%s", err, out)
	}

	return m.Run(), nil
}

// moduleRoot asks the go tool where go.mod lives.
func moduleRoot(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "go", "env", "GOMOD").Output()
	if err != nil {
		return "", fmt.Errorf("go env GOMOD: %w", err)
	}
	gomod := strings.TrimSpace(string(out))
	if gomod == "" || gomod == os.DevNull {
		return "", errors.New("not inside a Go module")
	}
	return filepath.Dir(gomod), nil
}

// Harness runs the docsync binary against a scratch site directory.
type Harness struct {
	t    *testing.T
	Site string
	env  []string
}

// NewHarness creates a harness with an empty site directory and an isolated
// config home.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{
		t:    t,
		Site: t.TempDir(),
		env:  append(os.Environ(), "XDG_CONFIG_HOME="+t.TempDir()),
	}
}

// Run executes docsync with args and returns stdout, stderr and the exit code.
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = h.Site
	cmd.Env = h.env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", -1, err
		}
		code = exitErr.ExitCode()
	}

	h.t.Logf("docsync %s (exit %d)\n%s%s", strings.Join(args, " "), code, stdout.String(), stderr.String())
	return stdout.String(), stderr.String(), code, nil
}

// MustRun runs docsync and fails the test on a non-zero exit.
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, code, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("run docsync %v: %v", args, err)
	}
	if code != 0 {
		h.t.Fatalf("docsync %v exited %d: %s", args, code, stderr)
	}
	return stdout
}

// Path returns the absolute path of a site-relative file.
func (h *Harness) Path(rel string) string {
	return filepath.Join(h.Site, filepath.FromSlash(rel))
}

// WriteFile writes a site-relative file.
func (h *Harness) WriteFile(rel, content string) {
	h.t.Helper()
	if err := os.MkdirAll(filepath.Dir(h.Path(rel)), 0755); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(h.Path(rel), []byte(content), 0644); err != nil {
		h.t.Fatal(err)
	}
}

// ReadFile reads a site-relative file.
func (h *Harness) ReadFile(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(h.Path(rel))
	if err != nil {
		h.t.Fatal(err)
	}
	return string(data)
}

// FileExists reports whether a site-relative path exists.
func (h *Harness) FileExists(rel string) bool {
	_, err := os.Stat(h.Path(rel))
	return err == nil
}
