// Command demo wires the full conversation stack from configuration and runs
// a single turn from the command line, printing streamed output as it
// arrives. It registers one local tool so tool-calling models have something
// to invoke.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/config"
	"github.com/rhuss/converser/pkg/debug"
	"github.com/rhuss/converser/pkg/engine"
	"github.com/rhuss/converser/pkg/invoke"
	"github.com/rhuss/converser/pkg/invoke/mcp"
	"github.com/rhuss/converser/pkg/provider"
	"github.com/rhuss/converser/pkg/provider/anthropic"
	"github.com/rhuss/converser/pkg/provider/openaichat"
	"github.com/rhuss/converser/pkg/storage"
	"github.com/rhuss/converser/pkg/storage/file"
	"github.com/rhuss/converser/pkg/storage/memory"
	"github.com/rhuss/converser/pkg/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath, strings.Join(flag.Args(), " ")); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, prompt string) error {
	if prompt == "" {
		prompt = "What time is it in UTC?"
	}

	debug.Init("", "")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov := buildProvider(cfg)
	defer prov.Close()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ensembles, err := buildEnsembles(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, ens := range ensembles {
			ens.Disconnect()
		}
	}()

	orch := invoke.NewOrchestrator(ensembles, cfg.Engine.InvocationTimeout, slog.Default())

	engCfg := engine.Config{
		Model:         cfg.Provider.Model,
		MaxToolRounds: cfg.Engine.MaxToolRounds,
		Controls:      cfg.Provider.Controls,
	}
	if cfg.Engine.RateLimitRPS > 0 {
		engCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.Engine.RateLimitRPS), 1)
	}

	eng, err := engine.New(prov, orch, store, printSink(), engCfg)
	if err != nil {
		return err
	}

	conv := engine.NewConversation()
	fmt.Printf("conversation %s\n> %s\n", conv.ID, prompt)

	appended, err := eng.Send(ctx, conv, api.NewUserMessage(api.TextContent(prompt)))
	if err != nil {
		return err
	}

	fmt.Printf("\n%d messages committed\n", len(appended))
	return nil
}

// printSink streams assistant output to stdout as it is produced.
func printSink() api.EventSink {
	return func(ev api.ConversationEvent) {
		switch ev.Type {
		case api.EventMessageProgress:
			fmt.Print(ev.Chunk)
		case api.EventMessageCompleted:
			fmt.Println()
		case api.EventMessageFailed:
			fmt.Printf("\n[failed: %s]\n", ev.Error)
		}
	}
}

func buildProvider(cfg *config.Config) provider.Provider {
	switch cfg.Provider.Kind {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
		}, slog.Default())
	default:
		return openaichat.New(openaichat.Config{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
		}, slog.Default())
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Log, error) {
	switch cfg.Storage.Type {
	case "file":
		return file.New(cfg.Storage.File.Dir)
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Storage.Postgres.DSN,
			MaxConns:       cfg.Storage.Postgres.MaxConns,
			MigrateOnStart: cfg.Storage.Postgres.MigrateOnStart,
		})
	default:
		return memory.New(), nil
	}
}

// buildEnsembles connects one local tool ensemble plus any configured MCP
// servers. A server that fails to connect fails startup; tools must be
// either fully available or absent.
func buildEnsembles(ctx context.Context, cfg *config.Config) ([]invoke.Ensemble, error) {
	local := invoke.NewFunctionEnsemble("local")
	err := local.Register(invoke.Invoker{
		Name:        "current_time",
		Description: "Returns the current time in UTC",
		Schema:      map[string]any{"type": "object"},
		Fn: func(_ context.Context, _ map[string]any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	})
	if err != nil {
		return nil, err
	}
	if err := local.Connect(ctx); err != nil {
		return nil, err
	}

	ensembles := []invoke.Ensemble{local}
	for _, srv := range cfg.MCP.Servers {
		ens := mcp.NewEnsemble(srv.ServerConfig)
		if err := ens.Connect(ctx); err != nil {
			return nil, err
		}
		slog.Info("connected MCP server", "name", srv.Name, "tools", len(ens.Invokers()))
		ensembles = append(ensembles, ens)
	}
	return ensembles, nil
}
