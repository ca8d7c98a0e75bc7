package scripture

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	logx "soulverse/pkg/logx"
)

// Service serves verse lookups. Each translation is loaded at most once
// concurrently and kept for the life of the process.
type Service struct {
	opt    Options
	client *http.Client
	log    logx.Logger

	mu     sync.RWMutex
	loaded map[string]*bible
	group  singleflight.Group
}

func New(opt Options, client *http.Client, log logx.Logger) *Service {
	opt = opt.withDefaults()
	if client == nil {
		client = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{opt: opt, client: client, log: log, loaded: map[string]*bible{}}
}

// Translations lists the configured translation codes, sorted.
func (s *Service) Translations() []string {
	out := make([]string, 0, len(s.opt.Translations))
	for k := range s.opt.Translations {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns one verse. A missing book, chapter or verse is ErrNotFound.
func (s *Service) Lookup(ctx context.Context, translation, bookName string, chapter, verse int) (Verse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opt.Timeout)
	defer cancel()

	b, err := s.load(ctx, translation)
	if err != nil {
		return Verse{}, err
	}
	bk, ok := b.find(bookName)
	if !ok {
		return Verse{}, fmt.Errorf("%w: book %q in %s", ErrNotFound, bookName, translation)
	}
	text, ok := bk.chapters[chapter][verse]
	if !ok || text == "" {
		return Verse{}, fmt.Errorf("%w: %s %d:%d in %s", ErrNotFound, bk.name, chapter, verse, translation)
	}
	return Verse{Book: bk.name, Chapter: chapter, Verse: verse, Text: text, Translation: b.code}, nil
}

// Search returns up to limit verses containing any keyword (case-insensitive),
// in canonical order.
func (s *Service) Search(ctx context.Context, translation string, keywords []string, limit int) ([]Verse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opt.Timeout)
	defer cancel()

	b, err := s.load(ctx, translation)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	if len(kws) == 0 {
		return nil, nil
	}

	var out []Verse
	for _, bk := range b.books {
		for _, ch := range sortedKeys(bk.chapters) {
			verses := bk.chapters[ch]
			for _, vn := range sortedKeys(verses) {
				text := verses[vn]
				lower := strings.ToLower(text)
				for _, k := range kws {
					if strings.Contains(lower, k) {
						out = append(out, Verse{Book: bk.name, Chapter: ch, Verse: vn, Text: text, Translation: b.code})
						if len(out) >= limit {
							return out, nil
						}
						break
					}
				}
			}
		}
	}
	return out, nil
}

// Preload loads the given translations, or every configured one when codes
// is empty, and returns how many are loaded. Failures are logged.
func (s *Service) Preload(ctx context.Context, codes ...string) int {
	if len(codes) == 0 {
		codes = s.Translations()
	}
	n := 0
	for _, c := range codes {
		start := time.Now()
		if _, err := s.load(ctx, c); err != nil {
			s.log.Warn("scripture preload failed", logx.String("translation", c), logx.Err(err))
			continue
		}
		n++
		s.log.Info("scripture loaded", logx.String("translation", c), logx.Duration("took", time.Since(start)))
	}
	return n
}

// Loaded lists the translations already held in memory, sorted.
func (s *Service) Loaded() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.loaded))
	for k := range s.loaded {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Service) load(ctx context.Context, code string) (*bible, error) {
	code = s.resolveCode(code)
	file, ok := s.opt.Translations[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTranslation, code)
	}

	s.mu.RLock()
	b := s.loaded[code]
	s.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	ch := s.group.DoChan(code, func() (any, error) {
		// detached so one cancelled caller does not fail the others
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opt.FetchTimeout)
		defer cancel()
		b, err := s.fetch(fctx, code, file)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.loaded[code] = b
		s.mu.Unlock()
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, fmt.Errorf("load %s: %w", code, r.Err)
		}
		return r.Val.(*bible), nil
	}
}

// resolveCode matches translation codes case-insensitively.
func (s *Service) resolveCode(code string) string {
	code = strings.TrimSpace(code)
	if _, ok := s.opt.Translations[code]; ok {
		return code
	}
	for k := range s.opt.Translations {
		if strings.EqualFold(k, code) {
			return k
		}
	}
	return code
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
