// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/quarrydocs/quarry/core"
	"github.com/quarrydocs/quarry/fetchcache"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// defaultMaxBlobSize skips files larger than 1 MiB; blobs that big
	// are almost never prose or reviewable code.
	defaultMaxBlobSize = 1 << 20

	// defaultRequestsPerSecond throttles GitHub API calls client-side,
	// well under the authenticated 5000/hour budget.
	defaultRequestsPerSecond = 5

	githubRequestTimeout = 30 * time.Second
	rawHost              = "https://raw.githubusercontent.com"
)

// GitConfig configures the GitHub repository fetcher.
type GitConfig struct {
	// RepoURL is a github.com repository URL (required), e.g.
	// https://github.com/owner/repo.
	RepoURL string

	// Token authenticates API calls. Empty means unauthenticated with
	// GitHub's much lower rate limits.
	Token string

	// MaxBlobSize skips blobs larger than this many bytes
	// (default 1 MiB).
	MaxBlobSize int64

	// RequestsPerSecond throttles API calls (default 5).
	RequestsPerSecond float64

	// Cache, when set, memoizes fetched blob text by content SHA so
	// re-runs over an unchanged repository skip the network.
	Cache *fetchcache.Cache

	Logger *slog.Logger
}

// GitSource walks a GitHub repository's default branch and yields one
// SourceDocument per text file. The tree listing happens on the first
// Next call; blobs are fetched one at a time as the pipeline pulls.
type GitSource struct {
	cfg     GitConfig
	client  *gh.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	owner, repo, branch string

	listed  bool
	entries []*gh.TreeEntry
	pos     int
	skipped int
}

var (
	_ Source       = (*GitSource)(nil)
	_ SkipReporter = (*GitSource)(nil)
)

// NewGitSource validates the config and creates a repository source.
func NewGitSource(cfg GitConfig) (*GitSource, error) {
	owner, repo, err := ParseGitHubURL(cfg.RepoURL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxBlobSize <= 0 {
		cfg.MaxBlobSize = defaultMaxBlobSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: githubRequestTimeout}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = githubRequestTimeout
	}

	return &GitSource{
		cfg:     cfg,
		client:  gh.NewClient(httpClient),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.With("component", "git-source", "repo", owner+"/"+repo),
		owner:   owner,
		repo:    repo,
	}, nil
}

// ParseGitHubURL extracts owner and repository from a github.com URL.
func ParseGitHubURL(repoURL string) (owner, repo string, err error) {
	if repoURL == "" {
		return "", "", fmt.Errorf("repository URL is required")
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL: %w", err)
	}

	parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", "", fmt.Errorf("repository URL must look like https://github.com/owner/repo, got %q", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Next returns the next text file of the repository, or ErrExhausted
// once every eligible blob has been yielded. Per-file fetch failures
// are returned as errors for the caller to skip over.
func (s *GitSource) Next(ctx context.Context) (*core.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.listed {
		if err := s.listTree(ctx); err != nil {
			return nil, err
		}
		s.listed = true
	}

	for s.pos < len(s.entries) {
		entry := s.entries[s.pos]
		s.pos++

		doc, err := s.fetchEntry(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", entry.GetPath(), err)
		}
		return doc, nil
	}
	return nil, ErrExhausted
}

// listTree resolves the default branch and lists every eligible blob in
// the repository tree.
func (s *GitSource) listTree(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	repository, _, err := s.client.Repositories.Get(ctx, s.owner, s.repo)
	if err != nil {
		return fmt.Errorf("get repository %s/%s: %w", s.owner, s.repo, err)
	}
	s.branch = repository.GetDefaultBranch()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	tree, _, err := s.client.Git.GetTree(ctx, s.owner, s.repo, s.branch, true)
	if err != nil {
		return fmt.Errorf("get tree %s/%s@%s: %w", s.owner, s.repo, s.branch, err)
	}
	if tree.GetTruncated() {
		s.logger.Warn("repository tree truncated by the API, some files will be missed")
	}

	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if IsProbablyBinary(p) {
			s.skipped++
			continue
		}
		if _, ok := ClassifyPath(p); !ok {
			s.skipped++
			continue
		}
		if entry.GetSize() > int(s.cfg.MaxBlobSize) {
			s.logger.Debug("skipping oversized blob", "path", p, "size", entry.GetSize())
			s.skipped++
			continue
		}
		s.entries = append(s.entries, entry)
	}

	s.logger.Info("listed repository tree",
		"branch", s.branch, "eligible", len(s.entries), "skipped", s.skipped, "total", len(tree.Entries))
	return nil
}

// SkippedDocs reports how many blobs the tree listing dropped as
// binary, unclassifiable, or oversized.
func (s *GitSource) SkippedDocs() int {
	return s.skipped
}

func (s *GitSource) fetchEntry(ctx context.Context, entry *gh.TreeEntry) (*core.SourceDocument, error) {
	p := entry.GetPath()
	kind, _ := ClassifyPath(p)

	text, err := s.blobText(ctx, entry, kind)
	if err != nil {
		return nil, err
	}

	return &core.SourceDocument{
		ID:      fmt.Sprintf("%s/%s/%s/%s/%s", rawHost, s.owner, s.repo, s.branch, p),
		Title:   path.Base(p),
		Text:    text,
		Origin:  core.OriginGit,
		Content: kind,
	}, nil
}

func (s *GitSource) blobText(ctx context.Context, entry *gh.TreeEntry, kind core.ContentKind) (string, error) {
	sha := entry.GetSHA()

	if s.cfg.Cache != nil {
		cached, ok, err := s.cfg.Cache.Get(sha)
		if err != nil {
			s.logger.Warn("cache read failed", "sha", sha, "err", err)
		} else if ok {
			return cached.Text, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	blob, _, err := s.client.Git.GetBlob(ctx, s.owner, s.repo, sha)
	if err != nil {
		return "", err
	}

	raw := []byte(blob.GetContent())
	if blob.GetEncoding() == "base64" {
		raw, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.GetContent(), "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode blob %s: %w", sha, err)
		}
	}

	text := NormalizeWhitespace(strings.ToValidUTF8(string(raw), "�"))

	if s.cfg.Cache != nil {
		err := s.cfg.Cache.Put(sha, &fetchcache.Entry{
			Text:      text,
			Kind:      kind,
			FetchedAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("cache write failed", "sha", sha, "err", err)
		}
	}

	return text, nil
}
