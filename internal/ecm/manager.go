// Package ecm orchestrates component operations: it loads the manifest,
// resolves descriptors, installs sources and persists the new forest.
package ecm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/install"
	"github.com/schaermu/ecm/internal/manifest"
	"github.com/schaermu/ecm/internal/resolve"
	"github.com/schaermu/ecm/internal/store"
	"github.com/schaermu/ecm/internal/update"
)

const tracerName = "github.com/schaermu/ecm/internal/ecm"

// Notifier receives user-facing notices such as failed deletes or available
// updates
type Notifier interface {
	Notify(level slog.Level, message string)
}

// LogNotifier writes notices to a logger
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs message at level
func (n LogNotifier) Notify(level slog.Level, message string) {
	n.Logger.Log(context.Background(), level, message)
}

// Publisher receives events about completed operations
type Publisher interface {
	Publish(Event)
}

// Recorder receives operation metrics
type Recorder interface {
	ObserveOperation(op string, err error, d time.Duration)
	SetInstalled(n int)
}

// Options configures a Manager
type Options struct {
	Layout   component.Layout
	DryRun   bool
	Notifier Notifier
	Events   Publisher
	Metrics  Recorder
}

// Result describes the outcome of an add or update
type Result struct {
	Record  component.Record `json:"record"`
	Planned []string         `json:"planned"`
	Changed bool             `json:"changed"`
	DryRun  bool             `json:"dry_run,omitempty"`
}

// Manager runs component operations. It is not safe for concurrent
// mutation; callers serialize Add, Update, UpdateAll and Delete.
type Manager struct {
	manifest  *manifest.Store
	resolver  *resolve.Resolver
	installer *install.Installer
	checker   *update.Checker
	content   store.ContentStore
	layout    component.Layout
	notifier  Notifier
	events    Publisher
	metrics   Recorder
	logger    *slog.Logger
	dryRun    bool
}

// New creates a manager
func New(
	m *manifest.Store,
	r *resolve.Resolver,
	i *install.Installer,
	c *update.Checker,
	content store.ContentStore,
	opts Options,
	logger *slog.Logger,
) *Manager {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: logger}
	}
	return &Manager{
		manifest:  m,
		resolver:  r,
		installer: i,
		checker:   c,
		content:   content,
		layout:    opts.Layout,
		notifier:  opts.Notifier,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger,
		dryRun:    opts.DryRun,
	}
}

// SetEvents replaces the event publisher
func (m *Manager) SetEvents(p Publisher) {
	m.events = p
}

// operation tracks one traced, logged and measured manager call
type operation struct {
	name   string
	start  time.Time
	span   trace.Span
	logger *slog.Logger
}

func (m *Manager) begin(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *operation) {
	opID := uuid.NewString()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ecm."+name)
	span.SetAttributes(append(attrs, attribute.String("op_id", opID))...)
	return ctx, &operation{
		name:   name,
		start:  time.Now(),
		span:   span,
		logger: m.logger.With("op", name, "op_id", opID),
	}
}

func (m *Manager) end(op *operation, err error) {
	if err != nil {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
	}
	op.span.End()
	if m.metrics != nil {
		m.metrics.ObserveOperation(op.name, err, time.Since(op.start))
	}
}

func (m *Manager) publish(t EventType, r component.Record) {
	if m.events == nil {
		return
	}
	m.events.Publish(Event{
		ID:        uuid.NewString(),
		Type:      t,
		Component: r.Name,
		Version:   r.Version,
		Time:      time.Now().UTC(),
	})
}

// load reads the current forest from the manifest document
func (m *Manager) load(ctx context.Context) (component.Forest, error) {
	forest, err := m.manifest.Load(ctx)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.SetInstalled(len(forest))
	}
	return forest, nil
}

func (m *Manager) save(ctx context.Context, forest component.Forest) error {
	if err := m.manifest.Save(ctx, forest); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.SetInstalled(len(forest))
	}
	return nil
}

// Init creates the components folder and manifest when missing and loads it
func (m *Manager) Init(ctx context.Context) (created bool, err error) {
	ctx, op := m.begin(ctx, "init")
	defer func() { m.end(op, err) }()

	created, err = m.manifest.EnsureExists(ctx)
	if err != nil {
		return false, err
	}
	if _, err = m.load(ctx); err != nil {
		return false, err
	}
	op.logger.Info("manifest ready", "path", m.manifest.Path(), "created", created)
	return created, nil
}

// Reload re-reads the manifest, for example after an external edit
func (m *Manager) Reload(ctx context.Context) (err error) {
	ctx, op := m.begin(ctx, "reload")
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return err
	}
	op.logger.Info("manifest reloaded", "components", len(forest))
	m.publish(EventReloaded, component.Record{})
	return nil
}

// List returns the forest as last loaded
func (m *Manager) List() component.Forest {
	return m.manifest.Current()
}

// Add installs the component published at manifestURL with its missing
// requirements and records it as a top-level component. A component of the
// same name is replaced.
func (m *Manager) Add(ctx context.Context, manifestURL string) (res Result, err error) {
	ctx, op := m.begin(ctx, "add", attribute.String("manifest_url", manifestURL))
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return Result{}, err
	}

	op.logger.Info("adding component", "manifest_url", manifestURL, "dry_run", m.dryRun)
	record, plan, err := m.resolver.Add(ctx, manifestURL, forest)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve %s: %w", manifestURL, err)
	}

	res = Result{Record: record, Planned: plan.Names(), Changed: true, DryRun: m.dryRun}
	if m.dryRun {
		m.logPlan(op.logger, plan)
		op.logger.Info("dry-run complete, no changes applied")
		return res, nil
	}

	if err := m.installer.Apply(ctx, plan); err != nil {
		return Result{}, fmt.Errorf("failed to install %s: %w", record.Name, err)
	}
	if err := m.save(ctx, forest.Upsert(record)); err != nil {
		return Result{}, err
	}

	op.logger.Info("component added", "component", record.Name, "version", record.Version, "installed", len(plan))
	m.publish(EventAdded, record)
	return res, nil
}

// Update upgrades the top-level component name when a newer version is
// published
func (m *Manager) Update(ctx context.Context, name string) (res Result, err error) {
	ctx, op := m.begin(ctx, "update", attribute.String("component", name))
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return Result{}, err
	}
	return m.update(ctx, op, forest, name)
}

func (m *Manager) update(ctx context.Context, op *operation, forest component.Forest, name string) (Result, error) {
	record, plan, err := m.resolver.Update(ctx, name, forest)
	if err != nil {
		return Result{}, fmt.Errorf("failed to update %s: %w", name, err)
	}

	res := Result{Record: record, Planned: plan.Names(), Changed: len(plan) > 0, DryRun: m.dryRun}
	if !res.Changed {
		op.logger.Info("component is up to date", "component", name, "version", record.Version)
		return res, nil
	}
	if m.dryRun {
		m.logPlan(op.logger, plan)
		op.logger.Info("dry-run complete, no changes applied")
		return res, nil
	}

	if err := m.installer.Apply(ctx, plan); err != nil {
		return Result{}, fmt.Errorf("failed to install %s: %w", name, err)
	}
	if err := m.save(ctx, forest.Upsert(record)); err != nil {
		return Result{}, err
	}

	op.logger.Info("component updated", "component", name, "version", record.Version, "installed", len(plan))
	m.publish(EventUpdated, record)
	return res, nil
}

// UpdateAll updates every top-level component with an available update.
// A failing component does not stop the others.
func (m *Manager) UpdateAll(ctx context.Context) (results []Result, err error) {
	ctx, op := m.begin(ctx, "update_all")
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	available, err := m.checker.Check(ctx, forest)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, a := range available {
		res, err := m.update(ctx, op, forest, a.Name)
		if err != nil {
			op.logger.Error("update failed", "component", a.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
		if !m.dryRun {
			forest = m.manifest.Current()
		}
	}
	return results, errors.Join(errs...)
}

// Delete removes the top-level component name and its source file.
// Dependencies stay installed. Failures are also reported to the notifier
// and leave the manifest unchanged.
func (m *Manager) Delete(ctx context.Context, name string) (err error) {
	ctx, op := m.begin(ctx, "delete", attribute.String("component", name))
	defer func() {
		if err != nil {
			m.notifier.Notify(slog.LevelError, fmt.Sprintf("Failed to delete component %s: %v", name, err))
		}
		m.end(op, err)
	}()

	forest, err := m.load(ctx)
	if err != nil {
		return err
	}

	record, ok := forest.Top(name)
	if !ok {
		return &component.NotFoundError{Name: name}
	}
	if record.Protected {
		return &component.ProtectedError{Name: name}
	}

	if err := m.installer.Remove(ctx, record); err != nil {
		return err
	}
	if err := m.save(ctx, forest.Without(name)); err != nil {
		return err
	}

	op.logger.Info("component deleted", "component", name)
	m.publish(EventDeleted, record)
	return nil
}

// CheckUpdates reports top-level components with a newer published version
func (m *Manager) CheckUpdates(ctx context.Context) (available []update.Available, err error) {
	ctx, op := m.begin(ctx, "check")
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	available, err = m.checker.Check(ctx, forest)
	if err != nil {
		return nil, err
	}
	for _, a := range available {
		m.notifier.Notify(slog.LevelInfo, fmt.Sprintf("Update available for %s: %s -> %s", a.Name, a.Installed, a.Latest))
	}
	op.logger.Info("updates checked", "components", len(forest), "available", len(available))
	return available, nil
}

// RegenerateIndex rewrites the export index from the manifest
func (m *Manager) RegenerateIndex(ctx context.Context) (text string, err error) {
	ctx, op := m.begin(ctx, "index")
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	text, err = m.manifest.RegenerateIndex(ctx)
	if err != nil {
		return "", err
	}
	op.logger.Info("index regenerated", "components", len(forest))
	m.publish(EventIndex, component.Record{})
	return text, nil
}

// Orphans lists component source files that no record references
func (m *Manager) Orphans(ctx context.Context) (orphans []string, err error) {
	ctx, op := m.begin(ctx, "orphans")
	defer func() { m.end(op, err) }()

	forest, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.content.List(ctx, m.layout.Dir)
	if err != nil {
		return nil, err
	}

	referenced := forest.FilePaths()
	pattern := m.layout.SourceGlob()
	for _, f := range files {
		if f == m.layout.IndexPath() || f == m.layout.ManifestPath() || referenced[f] {
			continue
		}
		match, err := doublestar.Match(pattern, f)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
		}
		if match {
			orphans = append(orphans, f)
		}
	}
	sort.Strings(orphans)
	op.logger.Debug("orphans listed", "files", len(files), "orphans", len(orphans))
	return orphans, nil
}

func (m *Manager) logPlan(logger *slog.Logger, plan resolve.Plan) {
	for _, r := range plan {
		logger.Info("would install", "component", r.Name, "version", r.Version, "source", r.Source, "path", r.FilePath)
	}
}
