package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/store"
)

// MemStore is an in-memory store.ContentStore
type MemStore struct {
	mu      sync.Mutex
	files   map[string]string
	folders map[string]bool

	// WriteErr, when set, fails every Write to a matching path ("" matches all)
	WriteErr     error
	WriteErrPath string
	// DeleteErr fails every Delete
	DeleteErr error

	Writes  []string
	Deletes []string
}

// NewMemStore creates an empty in-memory content store
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]string), folders: make(map[string]bool)}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Exists reports whether a file or folder exists at p
func (m *MemStore) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	_, ok := m.files[p]
	return ok || m.folders[p], nil
}

// CreateFolder records p as a folder
func (m *MemStore) CreateFolder(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[clean(p)] = true
	return nil
}

// Read returns the content at p
func (m *MemStore) Read(_ context.Context, p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[clean(p)]
	if !ok {
		return "", &store.PersistenceError{Op: "read", Path: p, Err: store.ErrNotExist}
	}
	return text, nil
}

// Write stores text at p
func (m *MemStore) Write(_ context.Context, p, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if m.WriteErr != nil && (m.WriteErrPath == "" || m.WriteErrPath == p) {
		return &store.PersistenceError{Op: "write", Path: p, Err: m.WriteErr}
	}
	m.files[p] = text
	m.Writes = append(m.Writes, p)
	return nil
}

// Delete removes p
func (m *MemStore) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return &store.PersistenceError{Op: "delete", Path: p, Err: m.DeleteErr}
	}
	p = clean(p)
	delete(m.files, p)
	m.Deletes = append(m.Deletes, p)
	return nil
}

// List returns every file below dir
func (m *MemStore) List(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := clean(dir) + "/"
	var files []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files, nil
}

// File returns the content at p and whether it exists
func (m *MemStore) File(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[clean(p)]
	return text, ok
}

// Put stores a file without recording a write
func (m *MemStore) Put(p, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(p)] = text
}

// Registry is a fetch.Fetcher serving descriptors and sources from memory.
// It counts requests per URL.
type Registry struct {
	mu    sync.Mutex
	docs  map[string]string
	fails map[string]error
	gets  map[string]int
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		docs:  make(map[string]string),
		fails: make(map[string]error),
		gets:  make(map[string]int),
	}
}

// Component is a descriptor published by Registry.Publish
type Component struct {
	Name     string        `json:"name,omitempty"`
	Version  string        `json:"version,omitempty"`
	Source   string        `json:"source,omitempty"`
	Requires []Requirement `json:"requires,omitempty"`
}

// Requirement is a descriptor requirement
type Requirement struct {
	Manifest string `json:"manifest"`
	Version  string `json:"version"`
	Name     string `json:"name,omitempty"`
}

// ManifestURL is the URL Publish serves the descriptor of name at
func ManifestURL(name string) string {
	return "https://registry.test/" + name + "/manifest.json"
}

// SourceURL is the URL Publish serves the source of name at
func SourceURL(name, version string) string {
	return "https://registry.test/" + name + "/" + version + "/" + name + ".jsx"
}

// Publish serves c at ManifestURL(c.Name) and a generated source at
// SourceURL when c.Source is empty. It returns the manifest URL.
func (r *Registry) Publish(c Component) string {
	if c.Source == "" && c.Name != "" && c.Version != "" {
		c.Source = SourceURL(c.Name, c.Version)
	}
	data, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	url := ManifestURL(c.Name)
	r.Set(url, string(data))
	if c.Source != "" {
		r.Set(c.Source, Source(c.Name, c.Version))
	}
	return url
}

// Source is the generated source text served for name@version
func Source(name, version string) string {
	return fmt.Sprintf("export const %s = () => null; // %s\n", name, version)
}

// Set serves body at url
func (r *Registry) Set(url, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[url] = body
	delete(r.fails, url)
}

// Fail makes requests for url return err
func (r *Registry) Fail(url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails[url] = err
}

// Get implements fetch.Fetcher
func (r *Registry) Get(_ context.Context, url string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets[url]++
	r.order = append(r.order, url)

	if err, ok := r.fails[url]; ok {
		return nil, &fetch.NetworkError{URL: url, Err: err}
	}
	body, ok := r.docs[url]
	if !ok {
		return nil, &fetch.NetworkError{URL: url, Status: http.StatusNotFound}
	}
	return []byte(body), nil
}

// Gets returns how often url was requested
func (r *Registry) Gets(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets[url]
}

// Requests returns every requested URL in order
func (r *Registry) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Reset clears the request counters
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets = make(map[string]int)
	r.order = nil
}

// Notice is one message received by Notifier
type Notice struct {
	Level   slog.Level
	Message string
}

// Notifier records user-facing notices
type Notifier struct {
	mu      sync.Mutex
	Notices []Notice
}

// Notify records a notice
func (n *Notifier) Notify(level slog.Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, Notice{Level: level, Message: message})
}

// Contains reports whether any notice message contains substr
func (n *Notifier) Contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, notice := range n.Notices {
		if strings.Contains(notice.Message, substr) {
			return true
		}
	}
	return false
}

// ErrBoom is a generic injected failure
var ErrBoom = errors.New("boom")
