// Gen is a conversational chat agent.
//
// She connects to a websocket chat gateway, keeps layered
// conversational context in SQLite, and answers messages through a
// bounded tool-calling reasoning loop backed by an OpenAI-compatible
// completion endpoint. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	gen serve                    Connect to the gateway and run
//	gen import-contacts <file>   Import user profiles from a vCard file
//	gen version                  Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gendev/gen-agent/internal/agent"
	"github.com/gendev/gen-agent/internal/buildinfo"
	"github.com/gendev/gen-agent/internal/config"
	"github.com/gendev/gen-agent/internal/events"
	"github.com/gendev/gen-agent/internal/fetch"
	"github.com/gendev/gen-agent/internal/gateway"
	"github.com/gendev/gen-agent/internal/history"
	"github.com/gendev/gen-agent/internal/httpkit"
	"github.com/gendev/gen-agent/internal/knowledge"
	"github.com/gendev/gen-agent/internal/llm"
	"github.com/gendev/gen-agent/internal/media"
	"github.com/gendev/gen-agent/internal/persona"
	"github.com/gendev/gen-agent/internal/presence"
	"github.com/gendev/gen-agent/internal/profiles"
	"github.com/gendev/gen-agent/internal/queue"
	"github.com/gendev/gen-agent/internal/search"
	"github.com/gendev/gen-agent/internal/store"
	"github.com/gendev/gen-agent/internal/tokens"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are injected so
// the lifecycle can be driven from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "import-contacts":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: gen import-contacts <file.vcf>")
		}
		return runImportContacts(ctx, stdout, configPath, cmdArgs[0])
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
			if v, ok := buildinfo.Info()[k]; ok {
				fmt.Fprintf(stdout, "  %-12s %s\n", k+":", v)
			}
		}
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Gen - Conversational Chat Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: gen [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                    Connect to the gateway and run")
	fmt.Fprintln(w, "  import-contacts <file>   Import user profiles from a vCard file")
	fmt.Fprintln(w, "  version                  Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// runImportContacts loads user profiles from a vCard export into the
// profile database.
func runImportContacts(ctx context.Context, stdout io.Writer, configPath, vcfPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	prof, err := profiles.Open("sqlite3", filepath.Join(cfg.DataDir, "profiles.db"), logger)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer prof.Close()

	f, err := os.Open(vcfPath)
	if err != nil {
		return fmt.Errorf("open vcard file: %w", err)
	}
	defer f.Close()

	count, err := prof.ImportVCards(ctx, f)
	if err != nil {
		return fmt.Errorf("import vcards: %w", err)
	}

	fmt.Fprintf(stdout, "Imported %d contact(s) from %s\n", count, vcfPath)
	return nil
}

// runServe is the primary operating mode: load config, open databases,
// connect to the gateway, wire the reasoning agent, and block until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Gen", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
			logger = newLogger(stdout, level)
		}
	}
	logger.Info("config loaded", "path", cfgPath, "gateway", cfg.Gateway.URL, "model", cfg.LLM.Model)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			logger.Warn("invalid timezone, using local", "timezone", cfg.Timezone, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Persistence ---

	st, err := store.Open("sqlite3", filepath.Join(cfg.DataDir, "conversations.db"), logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer st.Close()

	prof, err := profiles.Open("sqlite3", filepath.Join(cfg.DataDir, "profiles.db"), logger)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer prof.Close()

	// --- Persona ---

	profile := persona.LoadProfile(cfg.Persona.ProfileFile, logger)
	traits, err := persona.LoadTraits(cfg.Persona.TraitsDir)
	if err != nil {
		logger.Warn("loading traits failed", "dir", cfg.Persona.TraitsDir, "error", err)
	}
	p := persona.New(profile, traits, loc)

	// --- Backends ---

	bus := events.New()
	httpClient := httpkit.NewClient(
		httpkit.WithTimeout(cfg.LLM.Timeout()),
		httpkit.WithUserAgent(buildinfo.UserAgent()),
	)

	llmClient := llm.New(cfg.LLM.URL,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithHTTPClient(httpClient),
		llm.WithLogger(logger),
	)

	kc := knowledge.New(cfg.Knowledge.URL, knowledge.WithLogger(logger))
	var idle *knowledge.IdleManager
	if kc.Enabled() && cfg.Knowledge.IdleResumeSec > 0 {
		idle = knowledge.NewIdleManager(kc, time.Duration(cfg.Knowledge.IdleResumeSec)*time.Second, logger)
		go idle.Run(ctx)
	}

	var rerankOpts []search.RerankerOption
	if cfg.LLM.SecondaryURL != "" {
		rerankOpts = append(rerankOpts, search.WithSecondaryURL(cfg.LLM.SecondaryURL))
	}
	rerankOpts = append(rerankOpts,
		search.WithRerankerAPIKey(cfg.LLM.APIKey),
		search.WithRerankerLogger(logger),
	)
	reranker := search.NewReranker(cfg.LLM.RerankModel, cfg.LLM.URL, rerankOpts...)

	searcherOpts := []search.SearcherOption{
		search.WithReranker(reranker),
		search.WithSearcherLogger(logger),
	}
	if cfg.Search.MaxResults > 0 {
		searcherOpts = append(searcherOpts, search.WithMaxResults(cfg.Search.MaxResults))
	}
	searcher := search.NewSearcher(cfg.Search.SearXNGURL, searcherOpts...)

	extractor := search.NewExtractor(fetch.New(nil), llmClient, logger)

	mediaClient := media.New(cfg.Media.URL,
		media.WithAPIKey(cfg.Media.APIKey),
		media.WithImageModel(cfg.Media.Model),
		media.WithVisionModel(cfg.LLM.VisionModel),
		media.WithImageSize(cfg.Media.ImageSize),
		media.WithImageCount(cfg.Media.ImageN),
		media.WithLogger(logger),
	)

	est := tokens.New(nil, logger)
	q := queue.New()

	// --- Gateway ---
	//
	// Connect before building the agent: the bot's own user id may only
	// be known from the gateway's ready frame, and both the history
	// builder and the executor need it.

	var activity gateway.Activity
	if idle != nil {
		activity = idle
	}
	gw := gateway.New(gateway.Options{
		URL:          cfg.Gateway.URL,
		Token:        cfg.Gateway.Token,
		BotUserID:    cfg.Gateway.BotUserID,
		BotName:      p.Name(),
		MessageLimit: cfg.Gateway.MessageLimit,
		PlainText:    cfg.Gateway.PlainText,
		Bus:          bus,
		Logger:       logger,
	}, nil, st, prof, q, mediaClient, activity)

	if err := gw.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer gw.Close()
	botUserID := gw.BotUserID()

	// --- Agent ---

	builder := history.NewBuilder(cfg.History, st, prof, est, cfg.Gateway.Channels, botUserID, p.Name(), loc, logger)
	oracle := agent.NewOracle(llmClient, logger)
	executor := agent.NewExecutor(kc, searcher, extractor, mediaClient, prof, botUserID, logger)
	ag := agent.New(oracle, executor, builder, st, kc, q, prof, p, est, agent.Options{
		BotUserID:     botUserID,
		MaxContextTok: cfg.LLM.MaxContextTok,
		MaxOutputTok:  cfg.LLM.MaxOutputTok,
		MaxIterations: cfg.LLM.MaxIterations,
		Location:      loc,
		Bus:           bus,
		Logger:        logger,
	})
	gw.SetResponder(ag)

	// --- Presence ---

	if cfg.MQTT.Configured() {
		pub := presence.New(cfg.MQTT, bus, logger)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("presence publisher failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			pub.Stop(stopCtx)
		}()
	}

	// --- Run ---

	errCh := make(chan error, 2)
	go func() { errCh <- gw.Listen(ctx) }()
	go func() { errCh <- gw.Run(ctx) }()

	logger.Info("Gen is online", "bot_user_id", botUserID, "name", p.Name())

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	}
}
