package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/version"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecm.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: "/srv/vault"
  components_dir: "lib/components"
  extension: "tsx"

store:
  content: fs
  document: sqlite
  sqlite_path: "/srv/ecm.db"

fetch:
  timeout: 5s
  user_agent: "ecm-test"

resolve:
  propagation: direct
  upgrade_mode: per-field

serve:
  listen_addr: "0.0.0.0:9000"
  debounce: 500ms
  watch: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.Root != "/srv/vault" {
		t.Errorf("expected root /srv/vault, got %s", cfg.Paths.Root)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Serve.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %s", cfg.Serve.Debounce)
	}
	if cfg.WatchEnabled() {
		t.Error("expected watch disabled")
	}
	if cfg.Propagation() != resolve.PropagationDirect {
		t.Errorf("expected direct propagation, got %s", cfg.Propagation())
	}
	if cfg.UpgradeMode() != version.ModePerField {
		t.Errorf("expected per-field mode, got %s", cfg.UpgradeMode())
	}

	layout := cfg.Layout()
	if layout.FilePath("Card") != "lib/components/Card.tsx" {
		t.Errorf("unexpected file path %s", layout.FilePath("Card"))
	}
	if layout.ManifestPath() != "lib/components/manifest.md" {
		t.Errorf("unexpected manifest path %s", layout.ManifestPath())
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "paths: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "store:\n  content: ftp\n")); err == nil {
		t.Error("expected validation error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Paths.Root != "." || cfg.Paths.ComponentsDir != "components" {
		t.Errorf("unexpected path defaults %+v", cfg.Paths)
	}
	if cfg.Paths.Manifest != "manifest.md" || cfg.Paths.Index != "index.js" || cfg.Paths.Extension != ".jsx" {
		t.Errorf("unexpected file defaults %+v", cfg.Paths)
	}
	if cfg.Store.Content != ContentFS || cfg.Store.Document != DocumentFrontmatter {
		t.Errorf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Propagation() != resolve.PropagationTransitive {
		t.Errorf("expected transitive propagation, got %s", cfg.Propagation())
	}
	if cfg.UpgradeMode() != version.ModeLexicographic {
		t.Errorf("expected lexicographic mode, got %s", cfg.UpgradeMode())
	}
	if !cfg.WatchEnabled() {
		t.Error("watch should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "absolute components dir",
			mutate:  func(c *Config) { c.Paths.ComponentsDir = "/abs/components" },
			wantErr: true,
		},
		{
			name:    "escaping components dir",
			mutate:  func(c *Config) { c.Paths.ComponentsDir = "../outside" },
			wantErr: true,
		},
		{
			name:    "manifest in subfolder",
			mutate:  func(c *Config) { c.Paths.Manifest = "meta/manifest.md" },
			wantErr: true,
		},
		{
			name:    "unknown content store",
			mutate:  func(c *Config) { c.Store.Content = "ftp" },
			wantErr: true,
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Store.Content = ContentS3
				c.Store.S3.Region = "eu-central-1"
			},
			wantErr: true,
		},
		{
			name: "s3 without region",
			mutate: func(c *Config) {
				c.Store.Content = ContentS3
				c.Store.S3.Bucket = "components"
			},
			wantErr: true,
		},
		{
			name: "s3 key without secret",
			mutate: func(c *Config) {
				c.Store.Content = ContentS3
				c.Store.S3.Bucket = "components"
				c.Store.S3.Region = "eu-central-1"
				c.Store.S3.AccessKeyID = "AKIA"
			},
			wantErr: true,
		},
		{
			name: "valid s3",
			mutate: func(c *Config) {
				c.Store.Content = ContentS3
				c.Store.S3.Bucket = "components"
				c.Store.S3.Region = "eu-central-1"
			},
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Document = DocumentSQLite },
			wantErr: true,
		},
		{
			name:    "unknown document store",
			mutate:  func(c *Config) { c.Store.Document = "xml" },
			wantErr: true,
		},
		{
			name:    "invalid propagation",
			mutate:  func(c *Config) { c.Resolve.Propagation = "sometimes" },
			wantErr: true,
		},
		{
			name:    "invalid upgrade mode",
			mutate:  func(c *Config) { c.Resolve.UpgradeMode = "semver" },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Serve.Debounce = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ECM_TEST_ROOT", "/home/testuser/vault")
	t.Setenv("ECM_TEST_BUCKET", "my-bucket")

	path := writeConfig(t, `
paths:
  root: "${ECM_TEST_ROOT}"
store:
  s3:
    bucket: "$ECM_TEST_BUCKET"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.Root != "/home/testuser/vault" {
		t.Errorf("expected expanded root, got %s", cfg.Paths.Root)
	}
	if cfg.Store.S3.Bucket != "my-bucket" {
		t.Errorf("expected expanded bucket, got %s", cfg.Store.S3.Bucket)
	}
}

func TestDiscover(t *testing.T) {
	got, err := Discover("/explicit/ecm.yaml")
	if err != nil || got != "/explicit/ecm.yaml" {
		t.Errorf("explicit path should win, got %q %v", got, err)
	}

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))

	got, err = Discover("")
	if err != nil || got != "" {
		t.Errorf("expected no config found, got %q %v", got, err)
	}

	home := filepath.Join(dir, "home", ".config", "ecm")
	if err := os.MkdirAll(home, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	got, _ = Discover("")
	if got != filepath.Join(home, "config.yaml") {
		t.Errorf("expected home config, got %q", got)
	}

	if err := os.WriteFile(FileName, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	got, _ = Discover("")
	if got != FileName {
		t.Errorf("expected working directory config, got %q", got)
	}
}

func TestReadSecretFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("  s3cr3t\n"), 0600); err != nil {
		t.Fatal(err)
	}
	secret, err := ReadSecretFile(path)
	if err != nil || secret != "s3cr3t" {
		t.Errorf("ReadSecretFile = (%q, %v)", secret, err)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSecretFile(empty); err == nil {
		t.Error("expected error for empty secret")
	}
}
