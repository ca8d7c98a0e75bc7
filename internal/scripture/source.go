package scripture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sethvargo/go-retry"
)

const maxTranslationBytes = 64 << 20

// scrollmapper JSON layout.
type rawBible struct {
	Books []struct {
		Name     string `json:"name"`
		Chapters []struct {
			Chapter int `json:"chapter"`
			Verses  []struct {
				Verse int    `json:"verse"`
				Text  string `json:"text"`
			} `json:"verses"`
		} `json:"chapters"`
	} `json:"books"`
}

type book struct {
	name     string
	chapters map[int]map[int]string
}

type bible struct {
	code   string
	books  []*book
	byName map[string]*book
}

func decodeBible(code string, r io.Reader) (*bible, error) {
	var raw rawBible
	if err := json.NewDecoder(io.LimitReader(r, maxTranslationBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", code, err)
	}
	if len(raw.Books) == 0 {
		return nil, fmt.Errorf("decode %s: no books", code)
	}
	b := &bible{code: code, byName: make(map[string]*book, len(raw.Books))}
	for _, rb := range raw.Books {
		bk := &book{name: strings.TrimSpace(rb.Name), chapters: make(map[int]map[int]string, len(rb.Chapters))}
		for _, rc := range rb.Chapters {
			vs := make(map[int]string, len(rc.Verses))
			for _, rv := range rc.Verses {
				vs[rv.Verse] = strings.TrimSpace(rv.Text)
			}
			bk.chapters[rc.Chapter] = vs
		}
		b.books = append(b.books, bk)
		b.byName[normalizeBook(bk.name)] = bk
	}
	return b, nil
}

// find resolves a user-supplied book name. Names are matched through the alias
// table first; a full 66-book translation can also be matched by position.
func (b *bible) find(name string) (*book, bool) {
	n := normalizeBook(name)
	if i, ok := bookIndex[n]; ok {
		if bk, ok := b.byName[normalizeBook(canonicalBooks[i])]; ok {
			return bk, true
		}
		if len(b.books) == len(canonicalBooks) {
			return b.books[i], true
		}
	}
	bk, ok := b.byName[n]
	return bk, ok
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.url, e.status)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// fetch reads a translation from SourceDir when present, otherwise downloads it.
func (s *Service) fetch(ctx context.Context, code, file string) (*bible, error) {
	if s.opt.SourceDir != "" {
		f, err := os.Open(filepath.Join(s.opt.SourceDir, file))
		if err == nil {
			defer f.Close()
			return decodeBible(code, f)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	url := strings.TrimRight(s.opt.BaseURL, "/") + "/" + file
	backoff := retry.WithMaxRetries(s.opt.MaxRetries, retry.WithJitterPercent(20, retry.NewExponential(s.opt.RetryBase)))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (*bible, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, retry.RetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			herr := &httpStatusError{url: url, status: resp.StatusCode}
			if retryableStatus(resp.StatusCode) {
				return nil, retry.RetryableError(herr)
			}
			return nil, herr
		}
		return decodeBible(code, resp.Body)
	})
}
