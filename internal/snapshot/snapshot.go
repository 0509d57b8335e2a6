// Package snapshot builds a static export of crawl results: one JSON shard
// per hackathon plus a manifest, suitable for serving from a CDN or
// committing to a data repository.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/devpost"
)

// ShardVersion is bumped when the shard JSON layout changes.
const ShardVersion = 1

// Crawler runs one full hackathon crawl.
type Crawler interface {
	Scrape(ctx context.Context, rawURL string, events chan<- devpost.Event) (*devpost.CrawlResult, error)
}

// Lister queries the Devpost hackathon listing API.
type Lister interface {
	FetchJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error)
}

// Config controls one export run.
type Config struct {
	OutputDir   string
	Concurrency int
	Prune       bool
}

// Shard is the per-hackathon export file.
type Shard struct {
	Version      int                 `json:"version"`
	HackathonURL string              `json:"hackathon_url"`
	GeneratedAt  time.Time           `json:"generated_at"`
	Result       devpost.CrawlResult `json:"result"`
}

// ManifestEntry indexes one shard in the manifest.
type ManifestEntry struct {
	HackathonURL string    `json:"hackathon_url"`
	Shard        string    `json:"shard"`
	WinnerCount  int       `json:"winner_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Manifest is the top-level index of an export run.
type Manifest struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Count       int             `json:"count"`
	Entries     []ManifestEntry `json:"entries"`
}

// Failure records one hackathon whose crawl did not produce a shard.
type Failure struct {
	HackathonURL string `json:"hackathon_url"`
	Message      string `json:"message"`
}

// Report summarizes an export run. Failed crawls do not abort the run; they
// are listed here instead.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"-"`
	Failures  []Failure     `json:"failures,omitempty"`
}

// Builder runs crawls and writes the export tree.
type Builder struct {
	crawler Crawler
	lister  Lister
	cfg     Config
	logger  *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(crawler Crawler, lister Lister, cfg Config, logger *zap.Logger) *Builder {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "data/snapshot"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{crawler: crawler, lister: lister, cfg: cfg, logger: logger}
}

// DiscoverTargets walks the Devpost listing API for ended hackathons and
// returns up to limit normalized hackathon URLs.
func (b *Builder) DiscoverTargets(ctx context.Context, limit, maxPages int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	if maxPages <= 0 {
		maxPages = 10
	}

	seen := make(map[string]struct{})
	var targets []string
	for page := 1; page <= maxPages && len(targets) < limit; page++ {
		params := url.Values{}
		params.Set("status[]", "ended")
		params.Set("page", strconv.Itoa(page))
		payload, err := b.lister.FetchJSON(ctx, devpost.SearchAPIURL, params)
		if err != nil {
			return nil, fmt.Errorf("listing ended hackathons (page %d): %w", page, err)
		}

		raws, ok := payload["hackathons"].([]any)
		if !ok || len(raws) == 0 {
			break
		}
		for _, item := range raws {
			raw, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rawURL, _ := raw["url"].(string)
			normalized, err := devpost.NormalizeHackathonURL(rawURL)
			if err != nil {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			targets = append(targets, normalized)
			if len(targets) >= limit {
				break
			}
		}
	}
	return targets, nil
}

// Build crawls every target and writes shards plus the manifest. The run
// tolerates per-hackathon failures; only filesystem errors abort it.
func (b *Builder) Build(ctx context.Context, targets []string) (Report, error) {
	start := time.Now()
	shardsDir := filepath.Join(b.cfg.OutputDir, "shards")
	if err := os.MkdirAll(shardsDir, 0o750); err != nil {
		return Report{}, fmt.Errorf("create shards dir %s: %w", shardsDir, err)
	}

	var (
		mu       sync.Mutex
		entries  []ManifestEntry
		failures []Failure
		writeErr error
	)

	sem := make(chan struct{}, b.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				failures = append(failures, Failure{HackathonURL: target, Message: ctx.Err().Error()})
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			result, err := b.crawler.Scrape(ctx, target, nil)
			if err != nil {
				b.logger.Warn("snapshot crawl failed",
					zap.String("hackathon_url", target), zap.Error(err))
				mu.Lock()
				failures = append(failures, Failure{HackathonURL: target, Message: err.Error()})
				mu.Unlock()
				return
			}

			shard := Shard{
				Version:      ShardVersion,
				HackathonURL: result.Hackathon.URL,
				GeneratedAt:  result.GeneratedAt,
				Result:       *result,
			}
			name := shardFileName(result.Hackathon.URL)
			if err := writeJSONFile(filepath.Join(shardsDir, name), shard); err != nil {
				mu.Lock()
				if writeErr == nil {
					writeErr = err
				}
				mu.Unlock()
				return
			}

			b.logger.Info("snapshot shard written",
				zap.String("hackathon_url", result.Hackathon.URL),
				zap.Int("winner_count", len(result.Winners)))
			mu.Lock()
			entries = append(entries, ManifestEntry{
				HackathonURL: result.Hackathon.URL,
				Shard:        filepath.Join("shards", name),
				WinnerCount:  len(result.Winners),
				GeneratedAt:  result.GeneratedAt,
			})
			mu.Unlock()
		}()
	}
	wg.Wait()

	if writeErr != nil {
		return Report{}, writeErr
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].HackathonURL < entries[j].HackathonURL
	})
	manifest := Manifest{
		Version:     ShardVersion,
		GeneratedAt: time.Now().UTC(),
		Count:       len(entries),
		Entries:     entries,
	}
	if err := writeJSONFile(filepath.Join(b.cfg.OutputDir, "manifest.json"), manifest); err != nil {
		return Report{}, err
	}

	pruned := 0
	if b.cfg.Prune {
		var err error
		pruned, err = b.pruneStaleShards(shardsDir, entries)
		if err != nil {
			return Report{}, err
		}
	}

	return Report{
		Total:     len(targets),
		Succeeded: len(entries),
		Failed:    len(failures),
		Pruned:    pruned,
		Duration:  time.Since(start),
		Failures:  failures,
	}, nil
}

// pruneStaleShards removes shard files that this run did not produce, so a
// hackathon delisted from Devpost eventually drops out of the export.
func (b *Builder) pruneStaleShards(shardsDir string, entries []ManifestEntry) (int, error) {
	keep := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		keep[filepath.Base(entry.Shard)] = struct{}{}
	}

	files, err := os.ReadDir(shardsDir)
	if err != nil {
		return 0, fmt.Errorf("read shards dir: %w", err)
	}
	pruned := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, ok := keep[file.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(shardsDir, file.Name())); err != nil {
			return pruned, fmt.Errorf("prune shard %s: %w", file.Name(), err)
		}
		b.logger.Info("pruned stale shard", zap.String("shard", file.Name()))
		pruned++
	}
	return pruned, nil
}

func shardFileName(hackathonURL string) string {
	sum := sha256.Sum256([]byte(hackathonURL))
	return hex.EncodeToString(sum[:]) + ".json"
}

func writeJSONFile(path string, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
