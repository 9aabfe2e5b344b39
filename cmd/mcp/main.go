// Package main provides the entry point for the DocRouter MCP stdio server.
package main

import (
	"fmt"
	"os"

	"github.com/sigagent/docrouter-go/internal/config"
	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/mcp"
	"github.com/sigagent/docrouter-go/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Stdout carries the MCP protocol; logs must go to stderr.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     "stderr",
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "mcp").Logger()

	apiClient, err := docrouter.New(docrouter.Config{
		BaseURL:    cfg.DocRouter.BaseURL,
		Token:      cfg.DocRouter.Token,
		Timeout:    cfg.DocRouter.Timeout,
		RateLimit:  cfg.DocRouter.RateLimit,
		BurstSize:  cfg.DocRouter.BurstSize,
		MaxRetries: cfg.DocRouter.MaxRetries,
		RetryDelay: cfg.DocRouter.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("create docrouter client: %w", err)
	}

	srv, err := mcp.NewServer(apiClient, mcp.Config{
		ServerName:   cfg.MCP.ServerName,
		DefaultOrgID: cfg.DocRouter.OrgID,
		MaxPageSize:  cfg.MCP.MaxPageSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	return srv.Serve()
}
