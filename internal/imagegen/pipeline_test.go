package imagegen

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"soulverse/internal/storage"
	logx "soulverse/pkg/logx"
)

type fakeProvider struct {
	name  string
	url   string
	data  []byte
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, prompt string) (Image, error) {
	f.calls.Add(1)
	f.last.Store(prompt)
	if f.err != nil {
		return Image{}, f.err
	}
	return Image{URL: f.url, Data: f.data}, nil
}

var req = Request{Text: "The LORD is my shepherd", Reference: "Psalm 23:1", Mood: "peace"}

func TestRequestHash(t *testing.T) {
	t.Parallel()
	// md5("a_b_c")
	if got := (Request{Text: "a", Reference: "b", Mood: "c"}).Hash(); got != "8d28cddc274233853a82eae1c6c7f0b3" {
		t.Fatalf("hash = %s", got)
	}
	if req.Hash() == (Request{Text: req.Text, Reference: req.Reference, Mood: "joy"}).Hash() {
		t.Fatalf("mood must change the hash")
	}
}

func TestPipelineFallsThroughProviders(t *testing.T) {
	t.Parallel()
	bad := &fakeProvider{name: "bad", err: errors.New("quota")}
	good := &fakeProvider{name: "good", url: "https://img/1.png"}
	p := NewPipeline([]Provider{bad, good}, nil, DefaultOptions(), logx.Nop())

	a, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.URL != "https://img/1.png" || a.Method != "good" || a.IsPlaceholder() || a.ContentHash != req.Hash() {
		t.Fatalf("got %+v", a)
	}
	if bad.calls.Load() != 1 || good.calls.Load() != 1 {
		t.Fatalf("calls: bad=%d good=%d", bad.calls.Load(), good.calls.Load())
	}
	prompt, _ := good.last.Load().(string)
	if !strings.Contains(prompt, "Psalm 23:1") || !strings.Contains(prompt, "shepherd") {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestPipelinePlaceholder(t *testing.T) {
	t.Parallel()
	bad := &fakeProvider{name: "bad", err: errors.New("down")}
	p := NewPipeline([]Provider{bad}, nil, DefaultOptions(), logx.Nop())

	a, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !a.IsPlaceholder() || a.URL != DefaultPlaceholder || a.ContentHash != "default" {
		t.Fatalf("got %+v", a)
	}

	p = NewPipeline(nil, nil, Options{}, logx.Nop())
	if _, err := p.Generate(context.Background(), req); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestPipelineDedupsByHash(t *testing.T) {
	t.Parallel()
	good := &fakeProvider{name: "good", url: "https://img/2.png"}
	p := NewPipeline([]Provider{good}, storage.NewMemory(), DefaultOptions(), logx.Nop())
	ctx := context.Background()

	first, err := p.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Generate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if good.calls.Load() != 1 {
		t.Fatalf("provider called %d times, want 1", good.calls.Load())
	}
	if second.URL != first.URL || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("second = %+v, first = %+v", second, first)
	}

	other := req
	other.Mood = "joy"
	if _, err := p.Generate(ctx, other); err != nil {
		t.Fatal(err)
	}
	if good.calls.Load() != 2 {
		t.Fatalf("different hash should call the provider")
	}
}

type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }
func (slowProvider) Generate(ctx context.Context, _ string) (Image, error) {
	<-ctx.Done()
	return Image{}, ctx.Err()
}

func TestPipelineProviderTimeout(t *testing.T) {
	t.Parallel()
	p := NewPipeline([]Provider{slowProvider{}}, nil, Options{Timeout: 10 * time.Millisecond, Placeholder: DefaultPlaceholder}, logx.Nop())
	a, err := p.Generate(context.Background(), req)
	if err != nil || !a.IsPlaceholder() {
		t.Fatalf("got %+v, %v", a, err)
	}
}

func TestSceneElements(t *testing.T) {
	t.Parallel()
	got := sceneElements(Request{Text: "Ta parole est une lampe, une lumière sur mon chemin", VisualHint: "open bible"})
	if got != "open bible, divine light rays, golden glow, narrow path, journey road" {
		t.Fatalf("scene = %q", got)
	}
	if got := sceneElements(Request{Text: "Amen"}); !strings.HasPrefix(got, "peaceful spiritual atmosphere") {
		t.Fatalf("generic scene = %q", got)
	}
}

// ttlStore records the TTL of the last Set.
type ttlStore struct {
	storage.Store
	ttl atomic.Int64
}

func (s *ttlStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.ttl.Store(int64(ttl))
	return s.Store.Set(ctx, key, val, ttl)
}

func TestPipelineStoresInlineImages(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	png := []byte("\x89PNG fake")
	prov := &fakeProvider{name: "inline", data: png}
	store := &ttlStore{Store: storage.NewMemory()}
	opt := DefaultOptions()
	opt.Dir = dir
	opt.PublicURL = "https://soulverse.example/images/"
	p := NewPipeline([]Provider{prov}, store, opt, logx.Nop())
	ctx := context.Background()

	a, err := p.Generate(ctx, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	name := req.Hash() + ".png"
	if a.URL != "https://soulverse.example/images/"+name || a.LocalPath != filepath.Join(dir, name) {
		t.Fatalf("artifact = %+v", a)
	}
	if b, err := os.ReadFile(a.LocalPath); err != nil || !bytes.Equal(b, png) {
		t.Fatalf("stored image = %q, %v", b, err)
	}
	if got := time.Duration(store.ttl.Load()); got != opt.DedupTTL {
		t.Fatalf("dedup ttl = %v, want %v", got, opt.DedupTTL)
	}

	if _, err := p.Generate(ctx, req); err != nil || prov.calls.Load() != 1 {
		t.Fatalf("stored image not reused: calls=%d err=%v", prov.calls.Load(), err)
	}
	if err := os.Remove(a.LocalPath); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Generate(ctx, req); err != nil || prov.calls.Load() != 2 {
		t.Fatalf("missing file should regenerate: calls=%d err=%v", prov.calls.Load(), err)
	}
}

func TestPipelineDownloadsHostedImages(t *testing.T) {
	t.Parallel()
	body := []byte("jpeg bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gen/x.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	opt := DefaultOptions()
	opt.Dir = t.TempDir()
	opt.HTTPClient = srv.Client()
	ok := &fakeProvider{name: "hosted", url: srv.URL + "/gen/x.jpg?sig=abc"}
	p := NewPipeline([]Provider{ok}, nil, opt, logx.Nop())

	a, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.URL != DefaultPublicURL+"/"+req.Hash()+".jpg" {
		t.Fatalf("url = %q", a.URL)
	}
	if b, err := os.ReadFile(a.LocalPath); err != nil || !bytes.Equal(b, body) {
		t.Fatalf("downloaded = %q, %v", b, err)
	}

	gone := &fakeProvider{name: "gone", url: srv.URL + "/expired.png"}
	p = NewPipeline([]Provider{gone}, nil, opt, logx.Nop())
	if a, err := p.Generate(context.Background(), req); err != nil || !a.IsPlaceholder() {
		t.Fatalf("failed download should fall back: %+v, %v", a, err)
	}
}

func TestPipelineWithoutDirCapsHostedURLReuse(t *testing.T) {
	t.Parallel()
	store := &ttlStore{Store: storage.NewMemory()}
	hosted := &fakeProvider{name: "hosted", url: "https://img/3.png"}
	p := NewPipeline([]Provider{hosted}, store, DefaultOptions(), logx.Nop())
	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := time.Duration(store.ttl.Load()); got != RemoteTTL {
		t.Fatalf("ttl = %v, want %v", got, RemoteTTL)
	}

	inline := &fakeProvider{name: "inline", data: []byte("png")}
	p = NewPipeline([]Provider{inline}, nil, DefaultOptions(), logx.Nop())
	if a, err := p.Generate(context.Background(), req); err != nil || !a.IsPlaceholder() {
		t.Fatalf("inline image without dir: %+v, %v", a, err)
	}
}

func TestPipelineCleanup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	for name, age := range map[string]time.Duration{"old.png": 8 * 24 * time.Hour, "new.png": time.Hour} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, now.Add(-age), now.Add(-age)); err != nil {
			t.Fatal(err)
		}
	}
	p := NewPipeline(nil, nil, Options{Dir: dir}, logx.Nop())
	p.now = func() time.Time { return now }

	n, err := p.Cleanup(context.Background(), 7*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("removed %d, err %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.png")); err != nil {
		t.Fatalf("recent image removed: %v", err)
	}
	if n, err := NewPipeline(nil, nil, Options{}, logx.Nop()).Cleanup(context.Background(), time.Hour); n != 0 || err != nil {
		t.Fatalf("no dir: %d, %v", n, err)
	}
}
