// Package resolve turns remote descriptors into component records. Resolution
// only fetches descriptors; the files it decides to install are returned as a
// Plan and written by the caller.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/fetch"
	"github.com/schaermu/ecm/internal/version"
)

// ErrCycle is wrapped by every CycleError
var ErrCycle = errors.New("dependency cycle detected")

// CycleError reports a manifest URL reached again on its own resolution path
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// Propagation controls how far Update follows incompatible dependencies
type Propagation string

const (
	// PropagationNone never updates dependencies
	PropagationNone Propagation = "none"
	// PropagationDirect updates incompatible direct dependencies only
	PropagationDirect Propagation = "direct"
	// PropagationTransitive updates incompatible dependencies at any depth
	PropagationTransitive Propagation = "transitive"
)

// ParsePropagation parses a propagation name; empty means transitive
func ParsePropagation(s string) (Propagation, error) {
	switch p := Propagation(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PropagationTransitive, nil
	case PropagationNone, PropagationDirect, PropagationTransitive:
		return p, nil
	}
	return "", fmt.Errorf("invalid propagation %q (must be none, direct or transitive)", s)
}

func (p Propagation) follows(depth int) bool {
	switch p {
	case PropagationNone:
		return false
	case PropagationDirect:
		return depth == 0
	}
	return true
}

// Plan lists the records whose sources must be written, dependencies before
// their dependents
type Plan []component.Record

// Names returns the component names in plan order
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, r := range p {
		names[i] = r.Name
	}
	return names
}

// Options configures a Resolver
type Options struct {
	Layout      component.Layout
	Comparator  version.Comparator
	Propagation Propagation
}

// Resolver resolves component descriptors against an installed forest
type Resolver struct {
	fetcher     fetch.Fetcher
	layout      component.Layout
	comparator  version.Comparator
	propagation Propagation
	logger      *slog.Logger
}

// New creates a resolver
func New(fetcher fetch.Fetcher, opts Options, logger *slog.Logger) *Resolver {
	if opts.Propagation == "" {
		opts.Propagation = PropagationTransitive
	}
	return &Resolver{
		fetcher:     fetcher,
		layout:      opts.Layout,
		comparator:  opts.Comparator,
		propagation: opts.Propagation,
		logger:      logger,
	}
}

// resolution is the state of one Add or Update call
type resolution struct {
	forest   component.Forest
	resolved component.Forest
	plan     Plan
	bodies   map[string][]byte
}

func newResolution(forest component.Forest) *resolution {
	return &resolution{forest: forest, bodies: make(map[string][]byte)}
}

func (res *resolution) schedule(r component.Record) {
	for _, planned := range res.plan {
		if planned.FilePath == r.FilePath && planned.Source == r.Source {
			return
		}
	}
	res.plan = append(res.plan, r.Clone())
	res.resolved = append(res.resolved, r.Clone())
}

func (res *resolution) find(match func(component.Record) bool) (component.Record, bool) {
	for _, f := range []component.Forest{res.forest, res.resolved} {
		var found component.Record
		ok := false
		f.Walk(func(r component.Record, _ int) bool {
			if match(r) {
				found, ok = r, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	return component.Record{}, false
}

// fetch returns the descriptor body at url, fetching each URL once per call
func (r *Resolver) fetch(ctx context.Context, res *resolution, url string) ([]byte, error) {
	if body, ok := res.bodies[url]; ok {
		return body, nil
	}
	body, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	res.bodies[url] = body
	return body, nil
}

// checkReferences refuses local sources and requirements in remote descriptors
func checkReferences(url string, desc component.Descriptor) error {
	if err := fetch.CheckReference(url, desc.Source); err != nil {
		return err
	}
	for _, req := range desc.Requires {
		if err := fetch.CheckReference(url, req.Manifest); err != nil {
			return err
		}
	}
	return nil
}

func enter(path []string, url string) ([]string, error) {
	if slices.Contains(path, url) {
		return nil, &CycleError{Path: append(slices.Clone(path), url)}
	}
	return append(slices.Clone(path), url), nil
}

// installed looks up the record satisfying req: by its declared name, then
// by manifest URL, then by the name in the requirement's own descriptor
func (r *Resolver) installed(ctx context.Context, res *resolution, req component.Requirement) (component.Record, bool, error) {
	if req.Name != "" {
		if found, ok := res.find(func(c component.Record) bool { return c.Name == req.Name }); ok {
			return found, true, nil
		}
	}
	if found, ok := res.find(func(c component.Record) bool { return c.Manifest == req.Manifest }); ok {
		return found, true, nil
	}
	if req.Name != "" {
		return component.Record{}, false, nil
	}

	body, err := r.fetch(ctx, res, req.Manifest)
	if err != nil {
		return component.Record{}, false, err
	}
	desc, err := component.ParseDescriptor(req.Manifest, body)
	if err != nil {
		return component.Record{}, false, err
	}
	if desc.Name == "" {
		return component.Record{}, false, nil
	}
	found, ok := res.find(func(c component.Record) bool { return c.Name == desc.Name })
	return found, ok, nil
}

// Add resolves the component published at manifestURL together with every
// requirement not already satisfied by forest.
func (r *Resolver) Add(ctx context.Context, manifestURL string, forest component.Forest) (component.Record, Plan, error) {
	res := newResolution(forest)
	record, err := r.add(ctx, res, manifestURL, nil)
	if err != nil {
		return component.Record{}, nil, err
	}
	return record, res.plan, nil
}

func (r *Resolver) add(ctx context.Context, res *resolution, url string, path []string) (component.Record, error) {
	path, err := enter(path, url)
	if err != nil {
		return component.Record{}, err
	}

	body, err := r.fetch(ctx, res, url)
	if err != nil {
		return component.Record{}, err
	}
	desc, err := component.DecodeDescriptor(url, body)
	if err != nil {
		return component.Record{}, err
	}
	if err := checkReferences(url, desc); err != nil {
		return component.Record{}, err
	}

	record := desc.Record(url, r.layout)
	for _, req := range desc.Requires {
		found, ok, err := r.installed(ctx, res, req)
		if err != nil {
			return component.Record{}, err
		}
		if ok {
			satisfied, err := version.Satisfies(found.Version, req.Version)
			if err != nil {
				return component.Record{}, fmt.Errorf("installed %s: %w", found.Name, err)
			}
			if satisfied {
				r.logger.Debug("requirement already satisfied, skipping",
					"component", record.Name, "requirement", found.Name,
					"installed", found.Version, "required", req.Version)
				continue
			}
		}

		r.logger.Debug("resolving requirement", "component", record.Name, "manifest_url", req.Manifest)
		dep, err := r.add(ctx, res, req.Manifest, path)
		if err != nil {
			return component.Record{}, err
		}
		record.Requires = append(record.Requires, dep)
	}

	res.schedule(record)
	return record, nil
}

// Update upgrades the top-level component name to its latest published
// version. The record is returned unchanged with an empty plan when the
// remote version is missing or not an upgrade.
func (r *Resolver) Update(ctx context.Context, name string, forest component.Forest) (component.Record, Plan, error) {
	current, ok := forest.Top(name)
	if !ok {
		return component.Record{}, nil, &component.NotFoundError{Name: name}
	}

	res := newResolution(forest)
	record, err := r.update(ctx, res, current, nil, 0)
	if err != nil {
		return component.Record{}, nil, err
	}
	return record, res.plan, nil
}

func (r *Resolver) update(ctx context.Context, res *resolution, current component.Record, path []string, depth int) (component.Record, error) {
	url := current.Manifest
	path, err := enter(path, url)
	if err != nil {
		return component.Record{}, err
	}

	body, err := r.fetch(ctx, res, url)
	if err != nil {
		return component.Record{}, err
	}
	desc, err := component.ParseDescriptor(url, body)
	if err != nil {
		return component.Record{}, err
	}

	if desc.Version == "" {
		r.logger.Info("remote manifest has no version, skipping", "component", current.Name)
		return current, nil
	}
	upgrade, err := r.comparator.IsUpgrade(current.Version, desc.Version)
	if err != nil {
		return component.Record{}, fmt.Errorf("compare %s versions: %w", current.Name, err)
	}
	if !upgrade {
		r.logger.Debug("component is up to date", "component", current.Name, "version", current.Version)
		return current, nil
	}
	if err := desc.Validate(url); err != nil {
		return component.Record{}, err
	}
	if desc.Name != current.Name {
		return component.Record{}, &component.ManifestFormatError{
			URL:     url,
			Invalid: []string{"name"},
			Err:     fmt.Errorf("descriptor is named %q, installed as %q", desc.Name, current.Name),
		}
	}
	if err := checkReferences(url, desc); err != nil {
		return component.Record{}, err
	}

	updated := current.Clone()
	for _, req := range desc.Requires {
		found, ok, err := r.installed(ctx, res, req)
		if err != nil {
			return component.Record{}, err
		}

		if !ok {
			r.logger.Debug("new requirement, resolving", "component", current.Name, "manifest_url", req.Manifest)
			dep, err := r.add(ctx, res, req.Manifest, path)
			if err != nil {
				return component.Record{}, err
			}
			updated = updated.WithRequirement(dep)
			continue
		}

		satisfied, err := version.Satisfies(found.Version, req.Version)
		if err != nil {
			return component.Record{}, fmt.Errorf("installed %s: %w", found.Name, err)
		}
		if satisfied {
			continue
		}
		if !r.propagation.follows(depth) {
			r.logger.Warn("requirement incompatible, not propagating update",
				"component", current.Name, "requirement", found.Name,
				"installed", found.Version, "required", req.Version,
				"propagation", string(r.propagation))
			continue
		}

		r.logger.Info("requirement incompatible, updating",
			"component", current.Name, "requirement", found.Name,
			"installed", found.Version, "required", req.Version)
		dep, err := r.update(ctx, res, found, path, depth+1)
		if err != nil {
			return component.Record{}, err
		}
		updated = updated.WithRequirement(dep)
	}

	updated.Version = desc.Version
	updated.Source = desc.Source
	updated.Manifest = url
	if updated.FilePath == "" {
		updated.FilePath = r.layout.FilePath(updated.Name)
	}

	res.schedule(updated)
	return updated, nil
}
