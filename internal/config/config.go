package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/version"
)

// Content store backends
const (
	ContentFS = "fs"
	ContentS3 = "s3"
)

// Document store backends
const (
	DocumentFrontmatter = "frontmatter"
	DocumentSQLite      = "sqlite"
)

// FileName is the config file looked up in the working directory
const FileName = "ecm.yaml"

// Config represents the complete ecm configuration
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Store   StoreConfig   `yaml:"store"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Resolve ResolveConfig `yaml:"resolve"`
	Serve   ServeConfig   `yaml:"serve"`
}

// PathsConfig configures where components live inside the content store
type PathsConfig struct {
	Root          string `yaml:"root"`
	ComponentsDir string `yaml:"components_dir"`
	Manifest      string `yaml:"manifest"`
	Index         string `yaml:"index"`
	Extension     string `yaml:"extension"`
}

// StoreConfig selects the content and document backends
type StoreConfig struct {
	Content    string   `yaml:"content"`
	Document   string   `yaml:"document"`
	SQLitePath string   `yaml:"sqlite_path"`
	S3         S3Config `yaml:"s3"`
}

// S3Config configures the S3 content backend
type S3Config struct {
	Bucket              string `yaml:"bucket"`
	Prefix              string `yaml:"prefix"`
	Region              string `yaml:"region"`
	Endpoint            string `yaml:"endpoint"`
	AccessKeyID         string `yaml:"access_key_id"`
	SecretAccessKeyFile string `yaml:"secret_access_key_file"`
	PathStyle           bool   `yaml:"path_style"`
}

// FetchConfig configures descriptor and source downloads
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// ResolveConfig configures dependency resolution
type ResolveConfig struct {
	Propagation string `yaml:"propagation"`
	UpgradeMode string `yaml:"upgrade_mode"`
}

// ServeConfig configures the HTTP server
type ServeConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	HookSecretFile string        `yaml:"hook_secret_file"`
	Debounce       time.Duration `yaml:"debounce"`
	Watch          *bool         `yaml:"watch"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Discover returns the config file to load: explicit when set, else
// ./ecm.yaml, else $HOME/.config/ecm/config.yaml. An empty result means no
// file was found and defaults apply.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ecm", "config.yaml"))
	}

	for _, c := range candidates {
		_, err := os.Stat(c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", c, err)
		}
	}
	return "", nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Paths.Root = os.ExpandEnv(c.Paths.Root)
	c.Paths.ComponentsDir = os.ExpandEnv(c.Paths.ComponentsDir)
	c.Store.SQLitePath = os.ExpandEnv(c.Store.SQLitePath)
	c.Store.S3.Bucket = os.ExpandEnv(c.Store.S3.Bucket)
	c.Store.S3.Prefix = os.ExpandEnv(c.Store.S3.Prefix)
	c.Store.S3.Region = os.ExpandEnv(c.Store.S3.Region)
	c.Store.S3.Endpoint = os.ExpandEnv(c.Store.S3.Endpoint)
	c.Store.S3.AccessKeyID = os.ExpandEnv(c.Store.S3.AccessKeyID)
	c.Store.S3.SecretAccessKeyFile = os.ExpandEnv(c.Store.S3.SecretAccessKeyFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.HookSecretFile = os.ExpandEnv(c.Serve.HookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	layout := component.DefaultLayout()
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.ComponentsDir == "" {
		c.Paths.ComponentsDir = layout.Dir
	}
	if c.Paths.Manifest == "" {
		c.Paths.Manifest = layout.ManifestName
	}
	if c.Paths.Index == "" {
		c.Paths.Index = layout.IndexName
	}
	if c.Paths.Extension == "" {
		c.Paths.Extension = layout.Extension
	}
	if c.Store.Content == "" {
		c.Store.Content = ContentFS
	}
	if c.Store.Document == "" {
		c.Store.Document = DocumentFrontmatter
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "ecm"
	}
	if c.Resolve.Propagation == "" {
		c.Resolve.Propagation = string(resolve.PropagationTransitive)
	}
	if c.Resolve.UpgradeMode == "" {
		c.Resolve.UpgradeMode = string(version.ModeLexicographic)
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = "127.0.0.1:8484"
	}
	if c.Serve.Debounce == 0 {
		c.Serve.Debounce = 2 * time.Second
	}
	if c.Serve.Watch == nil {
		watch := true
		c.Serve.Watch = &watch
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate paths
	for name, p := range map[string]string{
		"paths.components_dir": c.Paths.ComponentsDir,
		"paths.manifest":       c.Paths.Manifest,
		"paths.index":          c.Paths.Index,
	} {
		if err := relativePath(name, p); err != nil {
			return err
		}
	}
	if strings.ContainsAny(c.Paths.Manifest, `/\`) || strings.ContainsAny(c.Paths.Index, `/\`) {
		return fmt.Errorf("paths.manifest and paths.index must be file names inside paths.components_dir")
	}
	if c.Paths.Extension == "" || strings.ContainsAny(c.Paths.Extension, `/\`) {
		return fmt.Errorf("invalid paths.extension: %q", c.Paths.Extension)
	}

	// Validate backends
	switch c.Store.Content {
	case ContentFS:
		if c.Paths.Root == "" {
			return fmt.Errorf("paths.root is required for the fs content store")
		}
	case ContentS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 content store")
		}
		if c.Store.S3.Region == "" {
			return fmt.Errorf("store.s3.region is required for the s3 content store")
		}
		if c.Store.S3.AccessKeyID != "" && c.Store.S3.SecretAccessKeyFile == "" {
			return fmt.Errorf("store.s3.secret_access_key_file is required when access_key_id is set")
		}
	default:
		return fmt.Errorf("invalid store.content: %s (must be fs or s3)", c.Store.Content)
	}

	switch c.Store.Document {
	case DocumentFrontmatter:
	case DocumentSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite document store")
		}
	default:
		return fmt.Errorf("invalid store.document: %s (must be frontmatter or sqlite)", c.Store.Document)
	}

	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative")
	}

	if _, err := resolve.ParsePropagation(c.Resolve.Propagation); err != nil {
		return fmt.Errorf("resolve.propagation: %w", err)
	}
	if _, err := version.ParseMode(c.Resolve.UpgradeMode); err != nil {
		return fmt.Errorf("resolve.upgrade_mode: %w", err)
	}

	if c.Serve.Debounce < 0 {
		return fmt.Errorf("serve.debounce must not be negative")
	}

	return nil
}

func relativePath(name, p string) error {
	if p == "" {
		return fmt.Errorf("%s is required", name)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%s must be relative to the store root: %s", name, p)
	}
	return nil
}

// Layout returns the component layout inside the content store
func (c *Config) Layout() component.Layout {
	return component.Layout{
		Dir:          path.Clean(filepath.ToSlash(c.Paths.ComponentsDir)),
		ManifestName: c.Paths.Manifest,
		IndexName:    c.Paths.Index,
		Extension:    c.Paths.Extension,
	}
}

// Propagation returns the parsed update propagation
func (c *Config) Propagation() resolve.Propagation {
	p, _ := resolve.ParsePropagation(c.Resolve.Propagation)
	return p
}

// UpgradeMode returns the parsed version comparison mode
func (c *Config) UpgradeMode() version.Mode {
	m, _ := version.ParseMode(c.Resolve.UpgradeMode)
	return m
}

// WatchEnabled reports whether serve reloads the manifest on change
func (c *Config) WatchEnabled() bool {
	return c.Serve.Watch == nil || *c.Serve.Watch
}

// ReadSecretFile reads a secret from path, trimming surrounding whitespace
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}
