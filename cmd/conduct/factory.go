package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/blackboard"
	"github.com/ShayCichocki/conduct/internal/capability"
	"github.com/ShayCichocki/conduct/internal/config"
	"github.com/ShayCichocki/conduct/internal/guard"
	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/internal/orchestrator"
	"github.com/ShayCichocki/conduct/internal/planner"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/internal/report"
	"github.com/ShayCichocki/conduct/internal/selector"
	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/internal/state"
	"github.com/ShayCichocki/conduct/internal/upload"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// app bundles everything a run or mission needs. Close releases the
// store and blackboard.
type app struct {
	engine    *orchestrator.Engine
	completer llm.Completer
	board     *blackboard.Blackboard
	backend   state.Backend
	sink      progress.Sink
	logger    *zap.Logger
}

func (r *app) Close() error {
	r.board.Close()
	return r.backend.Close()
}

// buildRuntime wires the engine from configuration.
func buildRuntime(ctx context.Context, cfg *config.Config, sink progress.Sink, log *zap.Logger) (*app, error) {
	completer, err := buildCompleter(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	directory, err := buildDirectory(cfg, completer)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}
	sessions := session.New(backend, session.WithLogger(log))

	engineOpts := []orchestrator.Option{
		orchestrator.WithPoolSize(cfg.Engine.PoolSize),
		orchestrator.WithWorkerTimeout(cfg.Engine.WorkerTimeout),
		orchestrator.WithReportsDir(cfg.Engine.ReportsDir),
		orchestrator.WithProgress(sink),
		orchestrator.WithLogger(log),
	}

	rules := selector.DefaultRules()
	if cfg.Selector.RulesPath != "" {
		if rules, err = selector.LoadRules(cfg.Selector.RulesPath); err != nil {
			backend.Close()
			return nil, fmt.Errorf("load selector rules: %w", err)
		}
	}
	engineOpts = append(engineOpts, orchestrator.WithSelector(
		selector.New(directory, selector.WithRules(rules), selector.WithLogger(log))))

	g := guard.New()
	if cfg.Guard.Path != "" {
		if err := g.LoadConfig(cfg.Guard.Path); err != nil {
			backend.Close()
			return nil, fmt.Errorf("load guard config: %w", err)
		}
	}
	engineOpts = append(engineOpts, orchestrator.WithGuard(g))

	reportOpts := []report.Option{report.WithLogger(log)}
	if completer != nil {
		reportOpts = append(reportOpts, report.WithCompleter(completer))
		engineOpts = append(engineOpts, orchestrator.WithInference(completer))
	}
	engineOpts = append(engineOpts, orchestrator.WithReportBuilder(report.NewBuilder(reportOpts...)))

	s3cfg := upload.S3Config{
		Bucket:          cfg.Upload.Bucket,
		Endpoint:        cfg.Upload.Endpoint,
		Region:          cfg.Upload.Region,
		AccessKeyID:     cfg.Upload.AccessKeyID,
		SecretAccessKey: cfg.Upload.SecretAccessKey,
		Prefix:          cfg.Upload.Prefix,
	}
	if s3cfg.Enabled() {
		uploader, err := upload.NewS3Uploader(ctx, s3cfg, upload.WithLogger(log))
		if err != nil {
			log.Warn("report upload disabled", zap.Error(err))
		} else {
			engineOpts = append(engineOpts, orchestrator.WithUploader(uploader))
		}
	}

	board := blackboard.New(
		blackboard.WithTopic(orchestrator.TopicFindings, blackboard.List),
		blackboard.WithTopic(orchestrator.TopicKnowledge, blackboard.List),
		blackboard.WithTopic(orchestrator.TopicStatus, blackboard.Scalar),
		blackboard.WithTopic(capability.TopicScope, blackboard.List),
		blackboard.WithLogger(log),
	)
	board.Subscribe(orchestrator.TopicFindings, func(ev blackboard.Event) {
		var f models.Finding
		if err := ev.Decode(&f); err != nil {
			log.Debug("undecodable finding on blackboard", zap.Error(err))
			return
		}
		log.Info("finding posted",
			zap.String("severity", string(f.Severity)),
			zap.String("worker", f.WorkerID),
			zap.Int("subtask", f.SubtaskID),
			zap.String("title", f.Title))
	})
	engineOpts = append(engineOpts, orchestrator.WithBlackboard(board))

	engine, err := orchestrator.New(orchestrator.RequiredConfig{
		Planner:   planner.New(completer, planner.WithLogger(log)),
		Directory: directory,
		Sessions:  sessions,
	}, engineOpts...)
	if err != nil {
		board.Close()
		backend.Close()
		return nil, err
	}

	return &app{
		engine:    engine,
		completer: completer,
		board:     board,
		backend:   backend,
		sink:      sink,
		logger:    log,
	}, nil
}

// buildCompleter returns the configured text-generation collaborator, or nil
// for provider "none". Without a collaborator the planner uses its fallback plan.
func buildCompleter(ctx context.Context, cfg *config.Config, log *zap.Logger) (llm.Completer, error) {
	var c llm.Completer
	switch cfg.LLM.Provider {
	case "none":
		return nil, nil
	case config.ProviderAnthropic:
		client, err := newAnthropic(cfg)
		if err != nil {
			return nil, err
		}
		c = client
	case config.ProviderGemini:
		client, err := newGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c = client
	case "router":
		providers := map[string]llm.Completer{}
		var errs []error
		if client, err := newAnthropic(cfg); err == nil {
			providers[config.ProviderAnthropic] = client
		} else {
			errs = append(errs, err)
		}
		if client, err := newGemini(ctx, cfg); err == nil {
			providers[config.ProviderGemini] = client
		} else {
			errs = append(errs, err)
		}
		if len(providers) == 0 {
			return nil, fmt.Errorf("router has no usable provider: %w", errors.Join(errs...))
		}

		var routes llm.RouteTable
		if cfg.LLM.RoutesPath != "" {
			var err error
			if routes, err = llm.LoadRoutes(cfg.LLM.RoutesPath); err != nil {
				return nil, err
			}
		}
		router, err := llm.NewRouter(providers, routes,
			llm.WithCostPreference(llm.CostTier(cfg.LLM.CostTier)),
			llm.WithRouterLogger(log))
		if err != nil {
			return nil, err
		}
		c = router
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return llm.WithTimeout(c, cfg.LLM.Timeout), nil
}

func newAnthropic(cfg *config.Config) (*llm.AnthropicClient, error) {
	a := cfg.LLM.Anthropic
	ac := llm.AnthropicConfig{
		Model:         a.Model,
		UseAWSBedrock: a.Bedrock,
		AWSRegion:     a.AWSRegion,
		AWSProfile:    a.AWSProfile,
	}
	if !a.Bedrock {
		key, err := config.GetAPIKey(cfg, config.ProviderAnthropic)
		if err != nil {
			return nil, err
		}
		ac.APIKey = key
	}
	return llm.NewAnthropicClient(ac)
}

func newGemini(ctx context.Context, cfg *config.Config) (*llm.GeminiClient, error) {
	key, err := config.GetAPIKey(cfg, config.ProviderGemini)
	if err != nil {
		return nil, err
	}
	return llm.NewGeminiClient(ctx, llm.GeminiConfig{APIKey: key, Model: cfg.LLM.Gemini.Model})
}

// buildDirectory loads the catalog and binds every entry to its worker.
func buildDirectory(cfg *config.Config, completer llm.Completer) (*capability.Directory, error) {
	entries := capability.DefaultCatalog()
	if cfg.Capabilities.CatalogPath != "" {
		extra, err := capability.LoadCatalog(cfg.Capabilities.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load capability catalog: %w", err)
		}
		entries = capability.Merge(entries, extra)
	}
	if completer == nil {
		completer = llm.CompleterFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
			return "", errors.New("no llm provider configured")
		})
	}

	return capability.New(entries, &capability.Binder{
		Local:      capability.DefaultLocal(),
		Completer:  completer,
		HTTPClient: &http.Client{Timeout: cfg.Engine.WorkerTimeout},
	})
}

// openBackend opens the configured durable store, with an optional JSON mirror.
func openBackend(sc config.StoreConfig) (state.Backend, error) {
	var primary state.Backend
	switch sc.Driver {
	case "memory":
		primary = state.NewMemoryStore()
	case "files":
		fs, err := state.NewFileStore(filesDir(sc))
		if err != nil {
			return nil, fmt.Errorf("open session directory: %w", err)
		}
		primary = fs
	default:
		path := sc.Path
		if path == "" {
			path = state.GlobalDBPath()
		}
		db, err := state.OpenWithDriver(sc.Driver, path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		primary = db
	}

	if sc.MirrorDir == "" {
		return primary, nil
	}
	mirror, err := state.NewFileStore(sc.MirrorDir)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("open mirror directory: %w", err)
	}
	return state.NewMulti(primary, mirror), nil
}

// filesDir is the snapshot directory of the files driver.
func filesDir(sc config.StoreConfig) string {
	if sc.Path != "" {
		return sc.Path
	}
	return filepath.Join(filepath.Dir(state.GlobalDBPath()), "sessions")
}
