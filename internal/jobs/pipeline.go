package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jackzampolin/sitebookify/internal/book"
	"github.com/jackzampolin/sitebookify/internal/crawl"
	"github.com/jackzampolin/sitebookify/internal/epub"
	"github.com/jackzampolin/sitebookify/internal/extract"
	"github.com/jackzampolin/sitebookify/internal/formats"
	"github.com/jackzampolin/sitebookify/internal/llm"
	"github.com/jackzampolin/sitebookify/internal/manifest"
	"github.com/jackzampolin/sitebookify/internal/rewrite"
	"github.com/jackzampolin/sitebookify/internal/toc"
)

// Progress checkpoints persisted after each stage.
const (
	progressAcquire  = 5
	progressExtract  = 25
	progressManifest = 30
	progressToc      = 40
	progressInit     = 55
	progressRender   = 65
	progressBundle   = 90
	progressEPUB     = 95
)

// PipelineConfig holds the shared dependencies for building job pipelines.
type PipelineConfig struct {
	Logger      *slog.Logger
	HTTPClient  *http.Client
	Engine      llm.Engine // backend for llm toc and rewrite engines
	CommandBin  string     // backend for command engines
	CommandArgs []string
	DeepCrawler extract.DeepCrawler // query-driven acquisition

	RewriteMaxChars    int
	RewriteRetries     int
	RewritePolicy      rewrite.Policy
	RewriteConcurrency int
	DownloadAssets     bool
}

// PipelineFactory builds the stage list for each request.
type PipelineFactory struct {
	cfg PipelineConfig
}

// NewPipelineFactory creates a PipelineFactory.
func NewPipelineFactory(cfg PipelineConfig) *PipelineFactory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RewriteConcurrency < 1 {
		cfg.RewriteConcurrency = 1
	}
	return &PipelineFactory{cfg: cfg}
}

// Stages implements StageFactory. The acquisition front-end depends on
// whether the request carries a URL or a query; everything downstream is
// shared.
func (f *PipelineFactory) Stages(req *formats.StartJobRequest, workDir string) ([]Stage, error) {
	rawDir := filepath.Join(workDir, "raw")
	extractedDir := filepath.Join(workDir, "extracted")
	manifestPath := filepath.Join(workDir, "manifest.jsonl")
	tocPath := filepath.Join(workDir, "toc.yaml")
	bookDir := filepath.Join(workDir, "book")
	bundlePath := filepath.Join(workDir, "book.md")
	epubPath := filepath.Join(workDir, "book.epub")

	var stages []Stage

	if req.Query != "" {
		if f.cfg.DeepCrawler == nil {
			return nil, fmt.Errorf("query requests need a deep-crawl backend")
		}
		queryStage := extract.NewQueryStage(f.cfg.DeepCrawler, f.cfg.Logger)
		stages = append(stages, Stage{
			Name:     "acquire",
			Progress: progressAcquire,
			Run: func(ctx context.Context) error {
				return queryStage.Run(ctx, req.Query, req.MaxPages, extractedDir)
			},
		})
	} else {
		crawler := crawl.New(crawl.Config{
			MaxPages:    req.MaxPages,
			MaxDepth:    req.MaxDepth,
			Concurrency: req.Concurrency,
			DelayMS:     req.DelayMS,
			Client:      f.cfg.HTTPClient,
			Logger:      f.cfg.Logger,
		})
		stages = append(stages, Stage{
			Name:     "acquire",
			Progress: progressAcquire,
			Run: func(ctx context.Context) error {
				return crawler.Run(ctx, req.URL, rawDir)
			},
		})

		extractStage := extract.NewStage(f.cfg.Logger)
		stages = append(stages, Stage{
			Name:     "extract",
			Progress: progressExtract,
			Run: func(ctx context.Context) error {
				records, err := crawl.ReadCrawlLog(rawDir)
				if err != nil {
					return err
				}
				return extractStage.Run(records, extractedDir)
			},
		})
	}

	stages = append(stages, Stage{
		Name:     "manifest",
		Progress: progressManifest,
		Run: func(ctx context.Context) error {
			return manifest.Build(filepath.Join(extractedDir, "pages"), manifestPath)
		},
	})

	planner, err := f.plannerFor(req.TocEngine)
	if err != nil {
		return nil, err
	}
	stages = append(stages, Stage{
		Name:     "toc",
		Progress: progressToc,
		Run: func(ctx context.Context) error {
			records, err := manifest.Read(manifestPath)
			if err != nil {
				return err
			}
			plan, err := planner.Plan(ctx, records)
			if err != nil {
				return err
			}
			t, err := toc.FromPlan(plan, records, req.Title, f.cfg.Logger)
			if err != nil {
				return err
			}
			return toc.WriteYAML(tocPath, t)
		},
	})

	stages = append(stages, Stage{
		Name:     "init",
		Progress: progressInit,
		Run: func(ctx context.Context) error {
			t, err := toc.ReadYAML(tocPath)
			if err != nil {
				return err
			}
			return book.Init(bookDir, t)
		},
	})

	rewriter, err := f.rewriterFor(req.RenderEngine)
	if err != nil {
		return nil, err
	}
	stages = append(stages, Stage{
		Name:     "render",
		Progress: progressRender,
		Run: func(ctx context.Context) error {
			t, err := toc.ReadYAML(tocPath)
			if err != nil {
				return err
			}
			records, err := manifest.Read(manifestPath)
			if err != nil {
				return err
			}
			renderer := book.NewRenderer(book.RenderConfig{
				Rewriter:    rewriter,
				Language:    req.Language,
				Tone:        req.Tone,
				Concurrency: f.cfg.RewriteConcurrency,
				Logger:      f.cfg.Logger,
			})
			if err := renderer.RenderChapters(ctx, t, records, bookDir); err != nil {
				return err
			}
			if f.cfg.DownloadAssets {
				fetcher := book.NewAssetFetcher(f.cfg.HTTPClient, f.cfg.Logger)
				if err := fetcher.Localize(ctx, bookDir); err != nil {
					f.cfg.Logger.Warn("asset localization failed", "error", err)
				}
			}
			return nil
		},
	})

	stages = append(stages, Stage{
		Name:     "bundle",
		Progress: progressBundle,
		Run: func(ctx context.Context) error {
			t, err := toc.ReadYAML(tocPath)
			if err != nil {
				return err
			}
			if err := book.Bundle(t, bookDir, bundlePath); err != nil {
				return err
			}
			// The artifact zips workDir/assets next to book.md.
			return copyTree(filepath.Join(bookDir, "src", "assets"), filepath.Join(workDir, "assets"))
		},
	})

	stages = append(stages, Stage{
		Name:     "epub",
		Progress: progressEPUB,
		Run: func(ctx context.Context) error {
			return epub.Build(bookDir, epubPath, epub.Options{
				LanguageTag: epub.GuessLangTag(req.Language),
			})
		},
	})

	return stages, nil
}

func (f *PipelineFactory) plannerFor(kind formats.EngineKind) (toc.Planner, error) {
	switch kind {
	case formats.EngineCommand, formats.EngineLLM:
		engine, err := f.engineFor(kind)
		if err != nil {
			return nil, err
		}
		return &toc.EnginePlanner{Engine: engine}, nil
	default:
		return toc.NoopPlanner{}, nil
	}
}

func (f *PipelineFactory) rewriterFor(kind formats.EngineKind) (*rewrite.Rewriter, error) {
	if kind == formats.EngineNoop || kind == "" {
		return nil, nil
	}
	engine, err := f.engineFor(kind)
	if err != nil {
		return nil, err
	}
	return rewrite.New(rewrite.Config{
		Engine:   engine,
		MaxChars: f.cfg.RewriteMaxChars,
		Retries:  f.cfg.RewriteRetries,
		Policy:   f.cfg.RewritePolicy,
		Logger:   f.cfg.Logger,
	}), nil
}

func (f *PipelineFactory) engineFor(kind formats.EngineKind) (llm.Engine, error) {
	switch kind {
	case formats.EngineCommand:
		if f.cfg.CommandBin == "" {
			return nil, fmt.Errorf("command engine requested but no command binary configured")
		}
		return llm.NewCommandEngine(f.cfg.CommandBin, f.cfg.CommandArgs...), nil
	case formats.EngineLLM:
		if f.cfg.Engine == nil {
			return nil, fmt.Errorf("llm engine requested but no backend configured")
		}
		return f.cfg.Engine, nil
	default:
		return nil, fmt.Errorf("engine kind %q has no backend", kind)
	}
}

// copyTree copies src into dst recursively. A missing src is not an error;
// rendered books without assets simply produce no assets directory.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		sp := filepath.Join(src, e.Name())
		dp := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyTree(sp, dp); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(sp, dp); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
