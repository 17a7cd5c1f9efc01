//go:build integration

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schaermu/ecm/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the ecm binary once and runs it against a workspace
type Harness struct {
	t      *testing.T
	binary string
	root   string
	config string
}

// NewHarness builds the binary and creates a workspace with a config file
// pointing at it
func NewHarness(t *testing.T, ctx context.Context) *Harness {
	t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		t.Fatalf("get project root: %v", err)
	}

	binDir := t.TempDir()
	binary := filepath.Join(binDir, "ecm")
	t.Logf("Building %s", binary)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", binary, "./cmd/ecm")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	root := t.TempDir()
	config := filepath.Join(root, "ecm.yaml")
	content := fmt.Sprintf("paths:\n  root: %q\nfetch:\n  timeout: 10s\n", root)
	if err := os.WriteFile(config, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &Harness{t: t, binary: binary, root: root, config: config}
}

// Run executes the binary with args and returns its output and exit code
func (h *Harness) Run(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()

	full := append([]string{"--config", h.config, "--log-level", "warn"}, args...)
	cmd := exec.CommandContext(ctx, h.binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustRun executes the binary and fails the test on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, args ...string) string {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Run(ctx, args...)
	if err != nil {
		h.t.Fatalf("run failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout
}

// ReadFile reads a file relative to the workspace root
func (h *Harness) ReadFile(p string) (string, error) {
	data, err := os.ReadFile(filepath.Join(h.root, p))
	return string(data), err
}

// FileExists checks if a file exists relative to the workspace root
func (h *Harness) FileExists(p string) bool {
	_, err := os.Stat(filepath.Join(h.root, p))
	return err == nil
}

// Registry serves component descriptors and sources over HTTP
type Registry struct {
	srv *httptest.Server

	mu      sync.Mutex
	docs    map[string]string
	sources map[string]string
}

// RegistryComponent is one published component version
type RegistryComponent struct {
	Name     string
	Version  string
	Requires []string // names of required components, at their published versions
}

// NewRegistry starts an empty registry
func NewRegistry(t *testing.T) *Registry {
	t.Helper()
	r := &Registry{docs: make(map[string]string), sources: make(map[string]string)}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.srv.Close)
	return r
}

// ManifestURL is the descriptor URL of name
func (r *Registry) ManifestURL(name string) string {
	return r.srv.URL + "/" + name + "/manifest.json"
}

// Publish makes c the latest version of its component. Requirements must be
// published first.
func (r *Registry) Publish(c RegistryComponent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sourcePath := fmt.Sprintf("/%s/%s/%s.jsx", c.Name, c.Version, c.Name)
	desc := map[string]any{
		"name":    c.Name,
		"version": c.Version,
		"source":  r.srv.URL + sourcePath,
	}

	var requires []map[string]string
	for _, dep := range c.Requires {
		var published map[string]any
		if err := json.Unmarshal([]byte(r.docs["/"+dep+"/manifest.json"]), &published); err != nil {
			panic(fmt.Sprintf("requirement %s is not published", dep))
		}
		requires = append(requires, map[string]string{
			"manifest": r.srv.URL + "/" + dep + "/manifest.json",
			"version":  published["version"].(string),
		})
	}
	if len(requires) > 0 {
		desc["requires"] = requires
	}

	data, err := json.Marshal(desc)
	if err != nil {
		panic(err)
	}
	r.docs["/"+c.Name+"/manifest.json"] = string(data)
	r.sources[sourcePath] = fmt.Sprintf("export const %s = () => null; // %s\n", c.Name, c.Version)
}

func (r *Registry) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if body, ok := r.docs[req.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
		return
	}
	if body, ok := r.sources[req.URL.Path]; ok {
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = io.WriteString(w, body)
		return
	}
	http.NotFound(w, req)
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
