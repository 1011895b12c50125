package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/config"
	"github.com/jackzampolin/sitebookify/internal/extract"
	"github.com/jackzampolin/sitebookify/internal/home"
	"github.com/jackzampolin/sitebookify/internal/jobs"
	"github.com/jackzampolin/sitebookify/internal/llm"
	"github.com/jackzampolin/sitebookify/internal/preview"
	"github.com/jackzampolin/sitebookify/internal/rewrite"
	"github.com/jackzampolin/sitebookify/internal/server"
	"github.com/jackzampolin/sitebookify/internal/store"
	"github.com/jackzampolin/sitebookify/internal/svcctx"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sitebookify server",
	Long: `Start the sitebookify HTTP server.

The server accepts job requests, drives the crawl/extract/toc/render/bundle/
epub pipeline in the background, and serves finished artifacts.

Examples:
  sitebookify serve                      # Start on default 127.0.0.1:8090
  sitebookify serve --addr 0.0.0.0:3000  # Bind elsewhere`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// A config file placed in the home directory wins over the search
		// path when no explicit --config is given.
		effectiveCfg := cfgFile
		if effectiveCfg == "" && h.ConfigExists() {
			effectiveCfg = h.ConfigPath()
		}
		cm, err := config.NewManager(effectiveCfg)
		if err != nil {
			return err
		}
		cm.WatchConfig()
		cfg := cm.Get()

		js := store.NewLocalFSJobStore(h.Path())
		as := store.NewLocalFSArtifactStore(js)

		var engine llm.Engine
		var deepCrawler extract.DeepCrawler
		if key := cfg.ResolvedOpenAIKey(); key != "" {
			oa := llm.NewOpenAIEngine(llm.OpenAIConfig{
				APIKey:  key,
				Model:   cfg.OpenAI.Model,
				BaseURL: cfg.OpenAI.BaseURL,
			})
			engine = oa
			deepCrawler = &extract.LLMDeepCrawler{Engine: oa}
		} else {
			logger.Warn("no OpenAI API key configured, llm engines unavailable")
		}

		policy := rewrite.PolicyStrict
		if cfg.Rewrite.Policy == string(rewrite.PolicyLenient) {
			policy = rewrite.PolicyLenient
		}

		factory := jobs.NewPipelineFactory(jobs.PipelineConfig{
			Logger:             logger,
			HTTPClient:         &http.Client{Timeout: 60 * time.Second},
			Engine:             engine,
			CommandBin:         cfg.Command.Bin,
			CommandArgs:        cfg.Command.Args,
			DeepCrawler:        deepCrawler,
			RewriteMaxChars:    cfg.Rewrite.MaxChars,
			RewriteRetries:     cfg.Rewrite.Retries,
			RewritePolicy:      policy,
			RewriteConcurrency: cfg.Rewrite.Concurrency,
			DownloadAssets:     cfg.Jobs.DownloadAssets,
		})

		runner := jobs.NewRunner(jobs.RunnerConfig{
			Store:     js,
			Artifacts: as,
			Factory:   factory,
			Logger:    logger,
		})
		queue := jobs.NewInProcessQueue(cfg.Jobs.MaxConcurrency)

		mode, err := jobs.ParseExecutionMode(cfg.Jobs.ExecutionMode)
		if err != nil {
			return err
		}
		var dispatcher jobs.Dispatcher
		switch mode {
		case jobs.ModeWorker:
			if cfg.Jobs.WorkerBaseURL == "" {
				return fmt.Errorf("worker execution mode needs jobs.worker_base_url")
			}
			dispatcher = jobs.NewWorkerDispatcher(cfg.Jobs.WorkerBaseURL, cfg.ResolvedWorkerToken(), logger)
		default:
			dispatcher = jobs.NewInProcessDispatcher(queue, runner, logger)
		}

		services := &svcctx.Services{
			Config:     cm,
			Home:       h,
			Jobs:       js,
			Artifacts:  as,
			Dispatcher: dispatcher,
			Runner:     runner,
			Queue:      queue,
			Previewer:  preview.New(&http.Client{Timeout: 30 * time.Second}, logger),
			Logger:     logger,
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr()
		}
		srv, err := server.New(server.Config{
			Addr:     addr,
			Services: services,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8090)")

	rootCmd.AddCommand(serveCmd)
}
