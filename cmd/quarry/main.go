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


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quarrydocs/quarry/ai"
	"github.com/quarrydocs/quarry/ai/ollama"
	"github.com/quarrydocs/quarry/fetchcache"
	"github.com/quarrydocs/quarry/pipeline"
	"github.com/quarrydocs/quarry/sink"
	"github.com/quarrydocs/quarry/source"
	"github.com/urfave/cli/v2"
)

const progressInterval = 16

func main() {
	app := &cli.App{
		Name:  "quarry",
		Usage: "Ingest a docs site or GitHub repo into a retrieval-ready corpus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "Docs site base URL or GitHub repo URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "type",
				Aliases:  []string{"t"},
				Usage:    "Ingestion type (docs or git)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output directory",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "ignore-robots",
				Usage: "Ignore robots.txt (docs mode)",
			},
			&cli.IntFlag{
				Name:  "max-pages",
				Usage: "Max pages to crawl (docs mode)",
				Value: 5000,
			},
			&cli.StringFlag{
				Name:  "include",
				Usage: "Comma-separated URL path globs to include (docs mode)",
			},
			&cli.StringFlag{
				Name:  "exclude",
				Usage: "Comma-separated URL path globs to exclude (docs mode)",
			},
			&cli.StringFlag{
				Name:  "ollama-base",
				Usage: "Embedding server base URL",
				Value: "http://localhost:11434",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Embedding model name",
				Value: "nomic-embed-text",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks per embedding call",
				Value: pipeline.DefaultBatchSize,
			},
			&cli.BoolFlag{
				Name:  "no-chroma",
				Usage: "Skip building the vector store",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum retry attempts for failed embedding calls",
				Value: pipeline.DefaultMaxRetries,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: pipeline.DefaultRetryDelay,
			},
			&cli.IntFlag{
				Name:  "max-chunk-chars",
				Usage: "Override chunk size in characters (0 = per-content defaults)",
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Override chunk overlap in characters",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Blob cache directory (git mode); re-runs skip unchanged files",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: setupLogger,
		Action: ingestCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestType := c.String("type")
	if ingestType != "docs" && ingestType != "git" {
		return fmt.Errorf("type must be docs or git, got %q", ingestType)
	}

	aiConfig := ai.NewConfig(
		ai.WithBaseURL(c.String("ollama-base")),
		ai.WithModel(c.String("model")),
	)
	aiConfig.Normalize()
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid embedding configuration: %w", err)
	}

	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	// Resolve the layout before anything opens so a bad output path
	// fails the run without side effects.
	layout, err := sink.EnsureLayout(c.String("out"))
	if err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	embedder, err := ollama.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	src, cache, err := buildSource(c, ingestType)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	jsonlStore, err := sink.NewJSONLStore(layout.JSONLPath)
	if err != nil {
		return fmt.Errorf("failed to open jsonl store: %w", err)
	}

	var vectors sink.VectorStore = sink.NoopVectorStore{}
	if !c.Bool("no-chroma") {
		vectors, err = sink.NewChromaStore(layout.ChromaDir, source.CollectionName(c.String("url")))
		if err != nil {
			jsonlStore.Close()
			return fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	fanout, err := sink.NewFanout(sink.NewRawStore(layout.RawDir), jsonlStore, vectors)
	if err != nil {
		jsonlStore.Close()
		vectors.Close()
		return err
	}
	defer fanout.Close()

	markdown := sink.NewMarkdownStore(layout.MarkdownDir)

	opts := []pipeline.Option{
		pipeline.WithProgress(os.Stderr, progressInterval),
		pipeline.WithSinkErrorCount(fanout.ErrorCount),
	}
	if maxChars := c.Int("max-chunk-chars"); maxChars > 0 {
		opts = append(opts, pipeline.WithChunking(maxChars, c.Int("chunk-overlap")))
	}

	p, err := pipeline.New(embedder, fanout.HandleBatch, markdown,
		[]pipeline.BatcherOption{
			pipeline.WithBatchSize(c.Int("batch-size")),
			pipeline.WithRetries(c.Int("max-retries"), c.Duration("retry-delay")),
		},
		opts...,
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Source: %s (%s)\n", c.String("url"), ingestType)
	fmt.Fprintf(os.Stderr, "Output: %s\n", layout.Root)
	fmt.Fprintf(os.Stderr, "Embedding: %s @ %s\n\n", aiConfig.Model, aiConfig.BaseURL)

	summary, runErr := p.Run(ctx, src)

	printSummary(summary, layout, vectors)

	// Partial per-document failures are already reported in the
	// summary; only cancellation or total failure is an error here.
	if runErr != nil {
		return fmt.Errorf("ingestion aborted: %w", runErr)
	}
	return nil
}

// buildSource constructs the docs crawler or git fetcher for the run,
// plus the blob cache when one is configured.
func buildSource(c *cli.Context, ingestType string) (source.Source, *fetchcache.Cache, error) {
	if ingestType == "docs" {
		src, err := source.NewDocsSource(source.DocsConfig{
			StartURL:        c.String("url"),
			MaxPages:        c.Int("max-pages"),
			IgnoreRobots:    c.Bool("ignore-robots"),
			IncludePatterns: splitGlobs(c.String("include")),
			ExcludePatterns: splitGlobs(c.String("exclude")),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("invalid docs source: %w", err)
		}
		return src, nil, nil
	}

	var cache *fetchcache.Cache
	if dir := c.String("cache"); dir != "" {
		var err error
		cache, err = fetchcache.Open(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open blob cache: %w", err)
		}
	}

	src, err := source.NewGitSource(source.GitConfig{
		RepoURL: c.String("url"),
		Token:   os.Getenv("GITHUB_TOKEN"),
		Cache:   cache,
	})
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, nil, fmt.Errorf("invalid git source: %w", err)
	}
	return src, cache, nil
}

func printSummary(summary *pipeline.Summary, layout sink.Layout, vectors sink.VectorStore) {
	if summary == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "\nIngestion complete in %s\n", summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "- Documents: %d processed, %d skipped\n", summary.DocsProcessed, summary.DocsSkipped)
	fmt.Fprintf(os.Stderr, "- Chunks: %d embedded, %d failed\n", summary.ChunksEmbedded, summary.ChunksFailed)
	if summary.ProtocolErrors > 0 {
		fmt.Fprintf(os.Stderr, "- Embedder protocol errors: %d\n", summary.ProtocolErrors)
	}
	if summary.SinkErrors > 0 {
		fmt.Fprintf(os.Stderr, "- Sink write errors: %d\n", summary.SinkErrors)
	}
	fmt.Fprintf(os.Stderr, "- Pages: %d written (%d partial)\n", summary.PagesWritten, summary.PartialPages)
	fmt.Fprintf(os.Stderr, "- JSONL: %s\n", layout.JSONLPath)
	fmt.Fprintf(os.Stderr, "- Markdown: %s\n", layout.MarkdownDir)
	if count := vectors.Count(); count > 0 {
		fmt.Fprintf(os.Stderr, "- Vector store: %s (%d chunks)\n", layout.ChromaDir, count)
	}
}

func splitGlobs(s string) []string {
	var globs []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			globs = append(globs, g)
		}
	}
	return globs
}

func setupLogger(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	return nil
}
