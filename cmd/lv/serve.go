package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/LoreVault/internal/audit"
	"github.com/untoldecay/LoreVault/internal/auth"
	"github.com/untoldecay/LoreVault/internal/codesearch"
	"github.com/untoldecay/LoreVault/internal/config"
	"github.com/untoldecay/LoreVault/internal/librarian"
	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/oracle"
	"github.com/untoldecay/LoreVault/internal/server"
	"github.com/untoldecay/LoreVault/internal/storage/sqlite"
	"github.com/untoldecay/LoreVault/internal/tools"
	"github.com/untoldecay/LoreVault/internal/vault"
	"github.com/untoldecay/LoreVault/internal/watcher"
	"github.com/untoldecay/LoreVault/internal/webtools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LoreVault server",
	Long: `Serve the vault over HTTP and MCP.

The base directory holds one sub-directory per tenant; server state
(index database, logs, lock file) lives under <base>/.lorevault.

Examples:
  lv serve --base ~/vaults
  lv serve --base ~/vaults --watch --listen :8471
  lv serve --base ~/vaults --mcp-stdio`,
	RunE: func(cmd *cobra.Command, args []string) error {
		for flagName, key := range map[string]string{
			"listen":     "listen",
			"watch":      "watch",
			"production": "production",
		} {
			if cmd.Flags().Changed(flagName) {
				switch key {
				case "listen":
					value, _ := cmd.Flags().GetString(flagName)
					config.Set(key, value)
				default:
					value, _ := cmd.Flags().GetBool(flagName)
					config.Set(key, value)
				}
			}
		}
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServe(config.Load(), mcpStdio)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default 127.0.0.1:8471)")
	serveCmd.Flags().Bool("watch", false, "Reindex notes edited outside the API")
	serveCmd.Flags().Bool("production", false, "Production mode: require auth.secret, reject static dev tokens")
	serveCmd.Flags().Bool("mcp-stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	rootCmd.AddCommand(serveCmd)
}

// unavailableProvider lets the server start without an API key; oracle
// and librarian queries fail with a clear message instead.
type unavailableProvider struct{}

func (unavailableProvider) Complete(ctx context.Context, req oracle.CompletionRequest) (*oracle.Completion, error) {
	return nil, errors.New("no LLM provider configured: set ANTHROPIC_API_KEY")
}

func runServe(cfg config.Config, mcpStdio bool) error {
	if cfg.Base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg.Base = cwd
	}
	stateDir := cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		return fmt.Errorf("cannot create state dir: %w", err)
	}

	// One server per vault. The lock also blocks a concurrent
	// `lv rebuild` against the same index.
	lock := flock.New(filepath.Join(stateDir, "lv.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("cannot acquire vault lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another lv process already serves %s", cfg.Base)
	}
	defer func() { _ = lock.Unlock() }()

	logging.Initialize(stateDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := sqlite.New(ctx, cfg.DBPath())
	if err != nil {
		return fmt.Errorf("cannot open index: %w", err)
	}
	defer func() { _ = index.Close() }()

	authSvc, err := auth.New(cfg)
	if err != nil {
		return err
	}
	vaultStore := vault.NewStore(cfg.Base)
	notesSvc := notes.NewService(vaultStore, index)

	var provider oracle.Provider = unavailableProvider{}
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err := oracle.NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return err
		}
		provider = anthropicProvider
	} else {
		fmt.Fprintln(os.Stderr, "Warning: no ANTHROPIC_API_KEY; oracle queries will fail")
	}
	librarianSvc := librarian.NewService(provider, notesSvc, cfg.LibrarianModel)

	deps := tools.Deps{Notes: notesSvc, Index: index, Librarian: librarianSvc}
	if cs := codesearch.New(cfg.CodeSearchURL); cs != nil {
		deps.Code = cs
	}
	if wc := webtools.New(cfg.WebToolsEnabled); wc != nil {
		deps.Web = wc
	}
	registry, err := tools.BuildRegistry(deps)
	if err != nil {
		return err
	}
	dispatcher := tools.NewDispatcher(registry)

	trail := audit.NewTrail(stateDir)
	oracleSvc := oracle.NewService(provider, dispatcher, index, trail, cfg.OracleModel, cfg.OracleMaxTokens)

	srv := server.New(cfg, authSvc, notesSvc, index, oracleSvc, dispatcher)
	if mcpStdio {
		return srv.ServeMCPStdio()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.Watch {
		g.Go(func() error {
			err := watcher.New(vaultStore, index).Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	fmt.Printf("lv serving %s on %s\n", cfg.Base, cfg.Listen)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
