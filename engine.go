package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/jward/xref/internal/config"
	"github.com/jward/xref/internal/extract"
	"github.com/jward/xref/internal/source"
	"github.com/jward/xref/internal/source/cxx"
	"github.com/jward/xref/internal/source/memtree"
	"github.com/jward/xref/internal/store"
)

// treeExtensions are the tree description formats handled by memtree.
var treeExtensions = []string{".xref.yaml", ".xref.yml", ".xref.json"}

// Engine orchestrates the xref pipeline: file discovery, parsing through a
// provider, fact extraction, flushing to the graph store, and query access.
type Engine struct {
	store  *store.Store
	logger *slog.Logger

	providers map[string]source.Provider // keyed by lower-case file suffix
	excludes  []string
	exclude   extract.Matcher

	policy        store.ExternalPolicy
	nameCacheSize int
	jobs          int
	synthesize    bool
	incremental   bool
	progress      ProgressFunc

	// mu serializes flushes so identity lookup-or-insert never races.
	mu sync.Mutex
}

// ProgressFunc is called after each unit of a batch is flushed or skipped.
type ProgressFunc func(done, total int, path string)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and its extractions.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExcludes replaces the exclude patterns. Nodes located in matching
// files are skipped during extraction, and matching paths are never parsed.
func WithExcludes(patterns ...string) Option {
	return func(e *Engine) { e.excludes = patterns }
}

// WithExternalPolicy sets how edges to undeclared functions are stored.
func WithExternalPolicy(p store.ExternalPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithJobs bounds how many units are parsed and extracted concurrently.
// Values below one mean serial extraction.
func WithJobs(n int) Option {
	return func(e *Engine) { e.jobs = n }
}

// WithNameCacheSize bounds the qualified-name memo of each extraction.
func WithNameCacheSize(n int) Option {
	return func(e *Engine) { e.nameCacheSize = n }
}

// WithSynthesizeExternals controls whether the C/C++ provider keeps calls
// to functions it cannot find a declaration for.
func WithSynthesizeExternals(on bool) Option {
	return func(e *Engine) { e.synthesize = on }
}

// WithIncremental controls whether units whose facts are unchanged since
// their last flush are skipped. Enabled by default.
func WithIncremental(on bool) Option {
	return func(e *Engine) { e.incremental = on }
}

// WithProgress registers a callback invoked once per unit of a batch.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithProvider registers p for files ending in suffix, overriding the
// built-in provider for that suffix.
func WithProvider(suffix string, p source.Provider) Option {
	return func(e *Engine) { e.providers[strings.ToLower(suffix)] = p }
}

// WithConfig applies a loaded configuration. Options listed after it still
// take precedence.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.excludes = cfg.Extract.Exclude
		e.nameCacheSize = cfg.Extract.NameCacheSize
		e.jobs = cfg.Extract.Jobs
		e.policy = cfg.Policy()
		e.synthesize = cfg.Provider.SynthesizeExternals
	}
}

// New creates an Engine backed by a SQLite database at dbPath. The schema is
// created on first use.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:        slog.Default(),
		providers:     make(map[string]source.Provider),
		excludes:      extract.DefaultExcludes,
		policy:        store.PolicyPlaceholder,
		nameCacheSize: extract.DefaultNameCacheSize,
		jobs:          runtime.NumCPU(),
		synthesize:    true,
		incremental:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registerDefaults()

	m, err := extract.CompileExcludes(e.excludes)
	if err != nil {
		return nil, fmt.Errorf("xref: %w", err)
	}
	e.exclude = m

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("xref: create database directory: %w", err)
		}
	}
	s, err := store.NewStore(dbPath, store.WithExternalPolicy(e.policy))
	if err != nil {
		return nil, fmt.Errorf("xref: create store: %w", err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("xref: ensure schema: %w", err)
	}
	e.store = s
	return e, nil
}

// registerDefaults fills in the built-in providers for suffixes no option
// claimed.
func (e *Engine) registerDefaults() {
	c := cxx.Provider{SynthesizeExternals: e.synthesize}
	for _, ext := range cxx.Extensions() {
		if _, ok := e.providers[ext]; !ok {
			e.providers[ext] = c
		}
	}
	for _, ext := range treeExtensions {
		if _, ok := e.providers[ext]; !ok {
			e.providers[ext] = memtree.Provider{}
		}
	}
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// providerFor returns the provider registered for the longest suffix of
// path, so ".xref.yaml" wins over a hypothetical ".yaml".
func (e *Engine) providerFor(path string) (source.Provider, bool) {
	lower := strings.ToLower(path)
	var (
		best    source.Provider
		bestLen int
	)
	for suffix, p := range e.providers {
		if len(suffix) > bestLen && strings.HasSuffix(lower, suffix) {
			best, bestLen = p, len(suffix)
		}
	}
	return best, best != nil
}

// Supported reports whether a provider is registered for path.
func (e *Engine) Supported(path string) bool {
	_, ok := e.providerFor(path)
	return ok
}

// ExtractFile parses, extracts and flushes a single unit.
func (e *Engine) ExtractFile(ctx context.Context, path string) (*UnitReport, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.ExtractSource(ctx, path, src)
}

// ExtractSource is ExtractFile for content that is already in memory.
func (e *Engine) ExtractSource(ctx context.Context, path string, src []byte) (*UnitReport, error) {
	r := e.extractUnit(ctx, path, src)
	if r.Err != nil {
		return r, r.Err
	}
	if err := e.flush(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

// ExtractTree extracts and flushes a tree that was built in memory, for
// example with memtree. unitPath names the unit in the store.
func (e *Engine) ExtractTree(ctx context.Context, unitPath string, root source.Node) (*UnitReport, error) {
	r := &UnitReport{Path: unitPath}
	unit, err := extract.Extract(ctx, root, e.extractOptions(unitPath)...)
	if err != nil {
		r.Err = fmt.Errorf("%w: %s: %w", ErrProviderFailure, unitPath, err)
		return r, r.Err
	}
	r.unit = unit
	r.Stats = unit.Stats
	if err := e.flush(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func (e *Engine) extractOptions(unitPath string) []extract.Option {
	return []extract.Option{
		extract.WithExclude(e.exclude),
		extract.WithNameCacheSize(e.nameCacheSize),
		extract.WithLogger(e.logger),
		extract.WithUnitPath(unitPath),
	}
}

// extractUnit runs the provider and the extractor for one unit. Failures
// are recorded on the report and never flushed.
func (e *Engine) extractUnit(ctx context.Context, path string, src []byte) *UnitReport {
	r := &UnitReport{Path: path}
	p, ok := e.providerFor(path)
	if !ok {
		r.Err = fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
		return r
	}
	root, err := p.Parse(ctx, path, src)
	if err != nil {
		r.Err = fmt.Errorf("%w: %s: %w", ErrProviderFailure, path, err)
		return r
	}
	if source.IsInvalid(root) {
		r.Err = fmt.Errorf("%w: %s: %w", ErrProviderFailure, path, extract.ErrInvalidRoot)
		return r
	}
	unit, err := extract.Extract(ctx, root, e.extractOptions(path)...)
	if err != nil {
		r.Err = fmt.Errorf("%w: %s: %w", ErrProviderFailure, path, err)
		return r
	}
	r.unit = unit
	r.Stats = unit.Stats
	return r
}

// flush writes an extracted unit. Store errors are wrapped in
// ErrStoreFailure.
func (e *Engine) flush(ctx context.Context, r *UnitReport) error {
	opts := []store.FlushOption{store.ReplaceUnit()}
	if e.incremental {
		opts = append(opts, store.SkipUnchanged())
	}

	e.mu.Lock()
	fr, err := e.store.Flush(ctx, r.unit, opts...)
	e.mu.Unlock()
	r.unit = nil
	if err != nil {
		r.Err = fmt.Errorf("%w: %w", ErrStoreFailure, err)
		return r.Err
	}
	r.Flush = fr

	log := e.logger.With(slog.String("unit", r.Path))
	if fr.Skipped {
		log.Debug("unit unchanged")
		return nil
	}
	log.Debug("unit flushed",
		slog.Int("functions", fr.Functions),
		slog.Int("calls", fr.Calls),
		slog.Int("external_refs", fr.ExternalRefs),
		slog.Int("rejected_calls", fr.RejectedCalls))
	return nil
}

// Prune removes the calls of units under root whose files no longer exist,
// then deletes external placeholders nothing references any more.
func (e *Engine) Prune(ctx context.Context, root string) (*PruneReport, error) {
	units, err := e.store.UnitPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	r := &PruneReport{}
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := filepath.Clean(root) + string(filepath.Separator)
	for _, u := range units {
		if !strings.HasPrefix(filepath.Clean(u), prefix) {
			continue
		}
		if _, err := os.Stat(u); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		n, err := e.store.DeleteUnit(ctx, u)
		if err != nil {
			return r, fmt.Errorf("%w: %w", ErrStoreFailure, err)
		}
		r.Units = append(r.Units, u)
		r.Calls += n
		e.logger.Info("unit pruned", slog.String("unit", u), slog.Int64("calls", n))
	}
	n, err := e.store.PruneExternals(ctx)
	if err != nil {
		return r, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	r.Externals = n
	return r, nil
}

// PruneReport lists what Prune removed.
type PruneReport struct {
	Units     []string `json:"units,omitempty"`
	Calls     int64    `json:"calls"`
	Externals int64    `json:"externals"`
}

// skipDirs are excluded from directory walks.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"third_party":  true,
}

// ExtractDirectory discovers the supported files under root and extracts
// them. Inside a git repository it uses git ls-files to respect .gitignore
// and falls back to a filesystem walk otherwise.
func (e *Engine) ExtractDirectory(ctx context.Context, root string) (*Report, error) {
	paths, err := e.ListFiles(root)
	if err != nil {
		return nil, err
	}
	return e.ExtractFiles(ctx, paths)
}

// ListFiles returns the files under root that ExtractDirectory would
// extract, sorted.
func (e *Engine) ListFiles(root string) ([]string, error) {
	paths, err := e.gitListFiles(root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", slog.String("root", root), slog.Any("err", err))
		if paths, err = e.walkListFiles(root); err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		abs := filepath.Join(root, line)
		if e.wanted(abs) {
			paths = append(paths, abs)
		}
	}
	return paths, nil
}

func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.wanted(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

func (e *Engine) wanted(path string) bool {
	return e.Supported(path) && !e.exclude.Match(filepath.ToSlash(path))
}
