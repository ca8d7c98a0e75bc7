package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soulverse/internal/storage"
	logx "soulverse/pkg/logx"
)

// Provider produces an image for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (Image, error)
}

const (
	DefaultPublicURL = "/images"
	// RemoteTTL caps how long a provider-hosted URL is reused when no
	// images dir is configured. OpenAI URLs expire after about an hour.
	RemoteTTL = 50 * time.Minute

	maxDownload = 20 << 20
)

type Options struct {
	// Timeout bounds each provider call and download. Default 60s.
	Timeout time.Duration
	// DedupTTL is how long artifacts are reused by hash. Default 7 days.
	DedupTTL time.Duration
	// Placeholder is the URL returned when every provider fails. Empty disables
	// the placeholder and Generate returns ErrNoProvider instead.
	Placeholder string
	// Dir stores generated images as {hash}{ext}. Empty keeps provider URLs,
	// reused for at most RemoteTTL.
	Dir string
	// PublicURL is the base URL Dir is served under. Default DefaultPublicURL.
	PublicURL string
	// HTTPClient downloads URL-only provider results into Dir.
	HTTPClient *http.Client
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{Timeout: 60 * time.Second, DedupTTL: 7 * 24 * time.Hour, Placeholder: DefaultPlaceholder}
}

type Pipeline struct {
	providers []Provider
	store     storage.Store
	opt       Options
	log       logx.Logger
	now       func() time.Time
}

// NewPipeline builds a pipeline. store may be nil to disable deduplication.
func NewPipeline(providers []Provider, store storage.Store, opt Options, log logx.Logger) *Pipeline {
	if opt.Timeout <= 0 {
		opt.Timeout = 60 * time.Second
	}
	if opt.DedupTTL <= 0 {
		opt.DedupTTL = 7 * 24 * time.Hour
	}
	if opt.PublicURL == "" {
		opt.PublicURL = DefaultPublicURL
	}
	opt.PublicURL = strings.TrimRight(opt.PublicURL, "/")
	if opt.HTTPClient == nil {
		opt.HTTPClient = http.DefaultClient
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{providers: providers, store: store, opt: opt, log: log, now: time.Now}
}

// Dir is the local images directory, empty when images are not kept.
func (p *Pipeline) Dir() string { return p.opt.Dir }

func artifactKey(hash string) string { return "image:" + hash }

// Generate returns a stored artifact for the same request hash, otherwise the
// first provider that succeeds, otherwise the placeholder.
func (p *Pipeline) Generate(ctx context.Context, req Request) (Artifact, error) {
	hash := req.Hash()
	if a, ok := p.lookup(ctx, hash); ok {
		return a, nil
	}

	prompt := buildPrompt(req)
	for _, prov := range p.providers {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		a, ttl, err := p.produce(ctx, prov, prompt, hash)
		if err != nil {
			p.log.Warn("image provider failed",
				logx.String("provider", prov.Name()),
				logx.String("reference", req.Reference),
				logx.Err(err),
			)
			continue
		}
		p.save(ctx, a, ttl)
		return a, nil
	}

	if p.opt.Placeholder == "" {
		return Artifact{}, fmt.Errorf("%w (%d tried)", ErrNoProvider, len(p.providers))
	}
	return Artifact{
		URL:         p.opt.Placeholder,
		ContentHash: "default",
		Method:      MethodFallback,
		GeneratedAt: p.now().UTC(),
	}, nil
}

// produce runs one provider and turns its result into an artifact plus the
// time it may be reused.
func (p *Pipeline) produce(ctx context.Context, prov Provider, prompt, hash string) (Artifact, time.Duration, error) {
	cctx, cancel := context.WithTimeout(ctx, p.opt.Timeout)
	defer cancel()

	img, err := p.call(cctx, prov, prompt)
	if err != nil {
		return Artifact{}, 0, err
	}
	a := Artifact{URL: img.URL, ContentHash: hash, Method: prov.Name(), GeneratedAt: p.now().UTC()}

	if p.opt.Dir == "" {
		if img.URL == "" {
			return Artifact{}, 0, errors.New("inline image needs an images dir")
		}
		return a, min(p.opt.DedupTTL, RemoteTTL), nil
	}

	data, ext := img.Data, img.Ext
	if len(data) == 0 {
		if img.URL == "" {
			return Artifact{}, 0, errors.New("provider returned no image")
		}
		if data, err = p.download(cctx, img.URL); err != nil {
			return Artifact{}, 0, err
		}
		ext = filepath.Ext(strings.SplitN(img.URL, "?", 2)[0])
	}
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	name := hash + ext
	path, err := p.write(name, data)
	if err != nil {
		return Artifact{}, 0, err
	}
	a.LocalPath = path
	a.URL = p.opt.PublicURL + "/" + name
	return a, p.opt.DedupTTL, nil
}

func (p *Pipeline) call(ctx context.Context, prov Provider, prompt string) (img Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return prov.Generate(ctx, prompt)
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	resp, err := p.opt.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if len(b) > maxDownload {
		return nil, fmt.Errorf("download image: larger than %d bytes", maxDownload)
	}
	return b, nil
}

// write stores data under Dir through a temp file and a rename.
func (p *Pipeline) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(p.opt.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}
	tmp, err := os.CreateTemp(p.opt.Dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save image: %w", err)
	}
	path := filepath.Join(p.opt.Dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("save image: %w", err)
	}
	return path, nil
}

// Cleanup removes stored images last modified more than maxAge ago and
// returns how many were removed.
func (p *Pipeline) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if p.opt.Dir == "" || maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(p.opt.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	cutoff := p.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.opt.Dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (p *Pipeline) lookup(ctx context.Context, hash string) (Artifact, bool) {
	if p.store == nil {
		return Artifact{}, false
	}
	b, ok, err := p.store.Get(ctx, artifactKey(hash))
	if err != nil {
		p.log.Debug("artifact lookup failed", logx.Err(err))
		return Artifact{}, false
	}
	if !ok {
		return Artifact{}, false
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil || a.URL == "" {
		return Artifact{}, false
	}
	// a cleaned-up file means regenerate
	if a.LocalPath != "" {
		if _, err := os.Stat(a.LocalPath); err != nil {
			return Artifact{}, false
		}
	}
	return a, true
}

func (p *Pipeline) save(ctx context.Context, a Artifact, ttl time.Duration) {
	if p.store == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := p.store.Set(ctx, artifactKey(a.ContentHash), b, ttl); err != nil {
		p.log.Warn("artifact save failed", logx.String("hash", a.ContentHash), logx.Err(err))
	}
}
