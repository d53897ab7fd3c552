// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package apipager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/retry"
	"golang.org/x/time/rate"
)

const defaultBaseAPI = "https://coomer.st/api/v1"

// Pager enumerates a single profile's posts over the paginated API. A
// Pager is single-use: construct one per enumeration session so the
// seen-id dedup set and the cached pagination mode don't leak across
// profiles.
type Pager struct {
	Client   *http.Client
	Opts     httpclient.Options
	Service  string
	Username string
	// BaseURL defaults to the production API host; tests point it at
	// an httptest server.
	BaseURL string

	limiter     *rate.Limiter
	mode        mode
	seen        map[string]bool // duplicate_key -> seen, for Media dedup
	seenPostIDs map[string]bool // post id -> seen, for mode-candidate probing
}

// New builds a Pager for one (service, username) enumeration session.
func New(client *http.Client, opts httpclient.Options, service, username string) *Pager {
	return &Pager{
		Client:      client,
		Opts:        opts,
		Service:     service,
		Username:    username,
		BaseURL:     defaultBaseAPI,
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		seen:        make(map[string]bool),
		seenPostIDs: make(map[string]bool),
	}
}

// Run drives the full enumeration, invoking onPage for every page
// fetched (including the last partial one on eventual failure). It
// returns the triggering error, if pagination stopped early — callers
// persist whatever the catalog accumulated via onPage regardless.
func (p *Pager) Run(ctx context.Context, onPage func(Page)) error {
	lastID, lastTimestamp := "", ""
	pageNum := 1
	seenCount := 0

	posts, err := p.fetchPostsWithRetry(ctx, p.firstPageURL())
	if err != nil {
		return err
	}
	page := p.accept(posts)
	onPage(page)
	lastID, lastTimestamp = lastCursor(page, lastID, lastTimestamp)
	seenCount += len(page.PostIDs)
	if len(page.PostIDs) == 0 {
		return nil
	}

	if err := p.waitTick(ctx); err != nil {
		return err
	}

	if p.mode == modeUnset {
		detected, detectedPosts, err := p.detectMode(ctx, lastID, lastTimestamp, seenCount)
		if err != nil {
			return err
		}
		if detected == modeUnset {
			return nil // no candidate advanced the cursor: enumeration is complete
		}
		p.mode = detected
		pg := p.accept(detectedPosts)
		onPage(pg)
		lastID, lastTimestamp = lastCursor(pg, lastID, lastTimestamp)
		seenCount += len(pg.PostIDs)
		pageNum = 2
		if len(pg.PostIDs) == 0 {
			return nil
		}
	}

	for {
		if err := p.waitTick(ctx); err != nil {
			return err
		}
		pageNum++
		key, value := candidateParam(p.mode, lastID, lastTimestamp, pageNum, seenCount)
		posts, err := p.fetchPostsWithRetry(ctx, p.pageURL(key, value))
		if err != nil {
			return err
		}
		if !hasUnseenPosts(posts, p.seenPostIDs) {
			return nil
		}
		pg := p.accept(posts)
		onPage(pg)
		lastID, lastTimestamp = lastCursor(pg, lastID, lastTimestamp)
		seenCount += len(pg.PostIDs)
	}
}

// detectMode tries before_id, max_id, before, page=2, page=1, then
// o=<seen_count>, in that fixed order, returning the
// first mode whose page contains at least one post id not already seen.
// Probe responses that are not picked are discarded without touching
// the dedup state: a page only counts as "seen" once it is actually
// accepted into the catalog.
func (p *Pager) detectMode(ctx context.Context, lastID, lastTimestamp string, seenCount int) (mode, []Post, error) {
	for _, m := range probeOrder {
		const pageNum = 2
		key, value := candidateParam(m, lastID, lastTimestamp, pageNum, seenCount)
		posts, err := p.fetchPostsWithRetry(ctx, p.pageURL(key, value))
		if err != nil {
			log.Printf("[apipager] probe mode %s failed: %v", m, err)
			continue
		}
		if hasUnseenPosts(posts, p.seenPostIDs) {
			return m, posts, nil
		}
		if err := p.waitTick(ctx); err != nil {
			return modeUnset, nil, err
		}
	}

	for _, pageNum := range []int{2, 1} {
		key, value := candidateParam(modePage, lastID, lastTimestamp, pageNum, seenCount)
		posts, err := p.fetchPostsWithRetry(ctx, p.pageURL(key, value))
		if err != nil {
			log.Printf("[apipager] probe mode page=%d failed: %v", pageNum, err)
			continue
		}
		if hasUnseenPosts(posts, p.seenPostIDs) {
			return modePage, posts, nil
		}
		if err := p.waitTick(ctx); err != nil {
			return modeUnset, nil, err
		}
	}

	key, value := candidateParam(modeOffset, lastID, lastTimestamp, 0, seenCount)
	posts, err := p.fetchPostsWithRetry(ctx, p.pageURL(key, value))
	if err == nil && hasUnseenPosts(posts, p.seenPostIDs) {
		return modeOffset, posts, nil
	}
	return modeUnset, nil, nil
}

func hasUnseenPosts(posts []Post, seen map[string]bool) bool {
	for _, post := range posts {
		if !seen[post.ID] {
			return true
		}
	}
	return false
}

func lastCursor(pg Page, prevID, prevTS string) (string, string) {
	if len(pg.PostIDs) == 0 {
		return prevID, prevTS
	}
	ts := pg.LastTimestamp
	if ts == "" {
		ts = prevTS
	}
	return pg.PostIDs[len(pg.PostIDs)-1], ts
}

func (p *Pager) firstPageURL() string {
	return fmt.Sprintf("%s/%s/user/%s/posts?_=%d", p.BaseURL, p.Service, p.Username, cacheBust())
}

func (p *Pager) pageURL(key, value string) string {
	u := fmt.Sprintf("%s/%s/user/%s/posts?_=%d", p.BaseURL, p.Service, p.Username, cacheBust())
	if key != "" {
		u += "&" + url.QueryEscape(key) + "=" + url.QueryEscape(value)
	}
	return u
}

// cacheBust mirrors the site's own `_=<now>` query param used to defeat
// intermediate caches in front of the API.
func cacheBust() int64 {
	return time.Now().UnixNano()
}

// waitTick blocks for the limiter-paced inter-page delay plus jitter
// (200ms + up to 250ms).
func (p *Pager) waitTick(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	if !retry.Sleep(ctx, jitter) {
		return ctx.Err()
	}
	return nil
}

// fetchPostsWithRetry fetches and JSON-decodes one page's raw posts,
// retrying up to 6 times with base 2s x1.6 backoff capped at 20s. It
// does not touch any dedup state; callers decide whether to accept the
// page via accept().
func (p *Pager) fetchPostsWithRetry(ctx context.Context, pageURL string) ([]Post, error) {
	const maxAttempts = 6
	b := retry.NewBackoff(2*time.Second, 1.6, 20*time.Second)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		posts, err := p.fetchOnce(ctx, pageURL)
		if err == nil {
			return posts, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		log.Printf("[apipager] page fetch failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		if !retry.Sleep(ctx, b.Next()) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (p *Pager) fetchOnce(ctx context.Context, pageURL string) ([]Post, error) {
	resp, err := httpclient.DoWithRetry(ctx, p.Client, func(c context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(c, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		httpclient.Prepare(req, p.Opts)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("apipager: unexpected status %s", resp.Status)
	}

	return decodePosts(resp.Body)
}

// decodePosts accepts either a bare JSON array of posts or
// {"posts": [...]}.
func decodePosts(r io.Reader) ([]Post, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var posts []Post
		if err := json.Unmarshal(raw, &posts); err != nil {
			return nil, err
		}
		return posts, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.Posts, nil
}

// accept commits a fetched page: it marks every post id seen (so mode
// probing never re-offers it) and expands each post's primary file and
// attachments into catalog.Media entries, deduplicating by
// duplicate_key across the Pager's whole lifetime.
func (p *Pager) accept(posts []Post) Page {
	var out Page
	for _, post := range posts {
		out.PostIDs = append(out.PostIDs, post.ID)
		p.seenPostIDs[post.ID] = true
		if ts := post.Timestamp(); ts != "" {
			out.LastTimestamp = ts
		}

		var refs []Attachment
		if post.File != nil && post.File.Path != "" {
			refs = append(refs, *post.File)
		}
		refs = append(refs, post.Attachments...)

		for _, a := range refs {
			key := duplicateKey(a)
			if p.seen[key] {
				continue
			}
			p.seen[key] = true

			name := a.Name
			if name == "" {
				name = path.Base(a.Path)
			}
			ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")

			out.Media = append(out.Media, catalog.Media{
				ID:      post.ID,
				Name:    name,
				CDNPath: a.Path,
				URL:     a.Path,
				Type:    catalog.TypeFromExtension(ext),
				Status:  catalog.StatusMissing,
			})
		}
	}
	return out
}

// duplicateKey is the basename without extension, or the raw name if
// the path is empty.
func duplicateKey(a Attachment) string {
	base := a.Path
	if base == "" {
		base = a.Name
	}
	base = path.Base(base)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
