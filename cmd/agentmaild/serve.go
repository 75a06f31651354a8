package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agent-mail/mailserver/internal/events"
	"github.com/agent-mail/mailserver/internal/httpapi"
	"github.com/agent-mail/mailserver/internal/jsonrpc"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC and REST listeners",
		Long: `Start the agent mail server: a single HTTP listener carrying both the
/mcp JSON-RPC transport pkg/agentmailclient speaks and the /api/v1 REST API,
plus a live event stream at /api/v1/ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "bind host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "bind port (overrides config)")
	return cmd
}

func runServe(hostFlag string, portFlag int) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if hostFlag != "" {
		cfg.Server.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}

	db, mm, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	signingKey, err := loadSigningKey(cfg.Export.SigningKeyPath)
	if err != nil {
		return err
	}

	dispatcher := jsonrpc.NewDispatcher(mm, identityMode(cfg))
	dispatcher.SigningKey = signingKey
	dispatcher.Events = events.NewEventEmitter(events.NewEventBus(64), 256)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Events.Start()

	projects, err := dispatcher.Project.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list projects for stale-lock cleanup: %w", err)
	}
	slugs := make([]string, len(projects))
	for i, p := range projects {
		slugs[i] = p.Slug
	}
	mm.CleanupStaleLocks(ctx, slugs)

	srv := httpapi.New(dispatcher, dispatcher.Events.Bus())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nreceived shutdown signal")
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("agentmaild starting",
		"addr", addr,
		"db", cfg.Database.Path,
		"archive_root", cfg.Archive.RepoRoot,
		"identity_mode", cfg.Identity.Mode,
		"signing_key_configured", signingKey != nil,
	)
	fmt.Printf("agentmaild listening on http://%s\n", addr)

	return srv.Start(ctx, addr)
}
