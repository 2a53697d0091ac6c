// Package loader fetches and decodes a model, its skin and its textures
// concurrently and assembles them into a mesh.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/m2view/internal/logger"
	"github.com/Faultbox/m2view/internal/model"
	"github.com/Faultbox/m2view/pkg/formats"
)

// Fetcher supplies raw file contents by name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, name string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// MissingTexturePolicy selects what happens when a texture cannot be fetched.
type MissingTexturePolicy string

const (
	// MissingTexturesFail fails the whole load.
	MissingTexturesFail MissingTexturePolicy = "fail"
	// MissingTexturesFallback leaves the texture unbound and records a warning.
	MissingTexturesFallback MissingTexturePolicy = "fallback"
)

// ParseMissingTexturePolicy parses a policy name. Empty means fail.
func ParseMissingTexturePolicy(s string) (MissingTexturePolicy, error) {
	switch p := MissingTexturePolicy(strings.ToLower(s)); p {
	case "", MissingTexturesFail:
		return MissingTexturesFail, nil
	case MissingTexturesFallback:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing texture policy %q (want fail or fallback)", s)
	}
}

// DefaultMaxConcurrentFetches bounds concurrent fetches when Options leaves it unset.
const DefaultMaxConcurrentFetches = 8

// Options configures a Loader.
type Options struct {
	StrictBlending       bool
	MissingTextures      MissingTexturePolicy
	MaxConcurrentFetches int
	SkinProfile          int
}

// Model holds every decoded piece of one load.
type Model struct {
	Path     string
	M2       *formats.M2
	Skin     *formats.Skin
	Textures map[string]*formats.BLP
	Mesh     *model.Mesh

	// Missing lists textures left unbound under the fallback policy.
	Missing []string
}

// Loader loads models through a Fetcher.
type Loader struct {
	fetcher Fetcher
	opts    Options
	log     *zap.Logger
}

// New creates a loader.
func New(f Fetcher, opts Options) *Loader {
	if opts.MaxConcurrentFetches <= 0 {
		opts.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if opts.MissingTextures == "" {
		opts.MissingTextures = MissingTexturesFail
	}
	return &Loader{
		fetcher: f,
		opts:    opts,
		log:     logger.Named("loader"),
	}
}

// Load loads the model at path and returns its assembled mesh.
func (l *Loader) Load(ctx context.Context, path string) (*model.Mesh, error) {
	m, err := l.LoadModel(ctx, path)
	if err != nil {
		return nil, err
	}
	return m.Mesh, nil
}

// LoadModel fetches and decodes the model header, then decodes the body,
// the skin and every referenced texture concurrently. Assembly runs only
// when all of them succeed; otherwise every failure is returned combined.
func (l *Loader) LoadModel(ctx context.Context, path string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := l.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	c := formats.NewCursor(data)
	h, err := formats.ParseM2Header(c)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	profile := l.opts.SkinProfile
	if n := h.SkinProfileCount(); profile < 0 || (n > 0 && profile >= n) {
		return nil, fmt.Errorf("%s: %w", path, formats.IndexError("skin profile", profile, n))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		result  = &Model{Path: path, Textures: make(map[string]*formats.BLP)}
		sem     = make(chan struct{}, l.opts.MaxConcurrentFetches)
		limited = func(fn func()) {
			sem <- struct{}{}
			defer func() { <-sem }()
			fn()
		}
	)

	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		// Errors caused by our own cancellation add nothing.
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return
		}
		errs = append(errs, err)
		cancel()
	}

	// Body, then one task per texture once the texture table is known
	wg.Add(1)
	go func() {
		defer wg.Done()

		m2, err := formats.ParseM2Body(c, h)
		if err != nil {
			fail(fmt.Errorf("decoding %s: %w", path, err))
			return
		}
		mu.Lock()
		result.M2 = m2
		mu.Unlock()

		flags := make(map[string]formats.TextureFlags)
		for _, t := range m2.Textures {
			if _, ok := flags[t.Filename]; !ok && t.Filename != "" {
				flags[t.Filename] = t.Flags
			}
		}

		for _, name := range m2.TextureNames() {
			wg.Add(1)
			go func(name string, f formats.TextureFlags) {
				defer wg.Done()
				limited(func() { l.loadTexture(ctx, name, f, result, &mu, fail) })
			}(name, flags[name])
		}
	}()

	// Skin
	wg.Add(1)
	go func() {
		defer wg.Done()

		var skin *formats.Skin
		var err error
		if h.HasEmbeddedSkins() {
			skin, err = formats.ParseEmbeddedSkin(data, h, profile)
			if err != nil {
				err = fmt.Errorf("decoding %s skin %d: %w", path, profile, err)
			}
		} else {
			name := strings.ToLower(formats.SkinFileName(path, profile))
			limited(func() {
				var raw []byte
				if raw, err = l.fetch(ctx, name); err != nil {
					return
				}
				if skin, err = formats.ParseSkin(raw, h.Version); err != nil {
					err = fmt.Errorf("decoding %s: %w", name, err)
				}
			})
		}
		if err != nil {
			fail(err)
			return
		}
		mu.Lock()
		result.Skin = skin
		mu.Unlock()
	}()

	wg.Wait()

	if len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	// Only the parent can have cancelled ctx without a recorded failure.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(result.Missing)

	mesh, err := model.Assemble(model.Input{
		Model:    result.M2,
		Skin:     result.Skin,
		Textures: result.Textures,
	}, model.AssembleOptions{StrictBlending: l.opts.StrictBlending})
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", path, err)
	}
	result.Mesh = mesh

	l.log.Debug("model loaded",
		zap.String("path", path),
		zap.Uint32("version", h.Version),
		zap.Int("textures", len(result.Textures)),
		zap.Int("missing", len(result.Missing)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (l *Loader) loadTexture(ctx context.Context, name string, flags formats.TextureFlags,
	result *Model, mu *sync.Mutex, fail func(error)) {
	raw, err := l.fetch(ctx, name)
	if err != nil {
		if l.opts.MissingTextures == MissingTexturesFallback && !errors.Is(err, context.Canceled) {
			l.log.Warn("texture unavailable, leaving unbound", zap.String("texture", name), zap.Error(err))
			mu.Lock()
			result.Missing = append(result.Missing, name)
			mu.Unlock()
			return
		}
		fail(err)
		return
	}

	tex, err := formats.ParseBLP(raw, flags)
	if err != nil {
		fail(fmt.Errorf("decoding %s: %w", name, err))
		return
	}

	mu.Lock()
	result.Textures[name] = tex
	mu.Unlock()
}

// fetch wraps fetcher failures in a ResourceError.
func (l *Loader) fetch(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	data, err := l.fetcher.Fetch(ctx, name)
	if err != nil {
		return nil, &ResourceError{Path: name, Err: err}
	}
	l.log.Debug("fetched", zap.String("name", name), zap.Int("bytes", len(data)), zap.Duration("elapsed", time.Since(start)))
	return data, nil
}
