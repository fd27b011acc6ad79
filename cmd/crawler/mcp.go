package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/crawl-engine/pkg/config"
	"github.com/Sriram-PR/crawl-engine/pkg/crawler"
	mcpserver "github.com/Sriram-PR/crawl-engine/pkg/mcp"
)

type mcpOptions struct {
	transport string
	port      int
	maxDepth  int
}

// NewMCPServerCmd creates the mcp-server command.
func NewMCPServerCmd(g *globalOptions) *cobra.Command {
	o := &mcpOptions{}
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve crawl jobs over the Model Context Protocol",
		Long: `Start an MCP server exposing crawl jobs as tools. All jobs share one engine.

Available MCP Tools:
  crawl_url       Start a background crawl from a seed URL
  get_job_status  Get a job's status and report
  list_jobs       List all jobs
  cancel_job      Cancel a running job`,
		Example: `  # stdio transport, for desktop MCP clients
  crawler mcp-server -c config.yaml

  # SSE transport on port 8080
  crawler mcp-server -c config.yaml --transport sse --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAndValidate(g.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return doMcpServer(cmd.Context(), g, cfg, o, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&o.transport, "transport", "stdio", "Transport type (stdio, sse)")
	cmd.Flags().IntVar(&o.port, "port", 8080, "HTTP port (for sse transport)")
	cmd.Flags().IntVar(&o.maxDepth, "max-depth", 5, "Largest depth accepted from clients (0 = unbounded)")
	return cmd
}

// doMcpServer runs the MCP server until its transport stops. Logs go to
// stderr because the stdio transport owns stdout.
func doMcpServer(ctx context.Context, g *globalOptions, cfg *config.AppConfig, o *mcpOptions, stderr io.Writer) error {
	log, closer := newLogger(g, cfg, stderr)
	defer closer.Close()

	dl, err := buildDownloader(cfg, log)
	if err != nil {
		return err
	}
	defer dl.Close()

	engine, err := crawler.NewEngine(cfg.Engine(), dl, crawler.WithLogger(log))
	if err != nil {
		return err
	}
	defer engine.Close()

	server, err := mcpserver.NewServer(&mcpserver.ServerConfig{
		Crawler:      engine,
		DefaultDepth: cfg.Depth,
		MaxDepth:     o.maxDepth,
		Transport:    o.transport,
		Port:         o.port,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer server.Shutdown(ctx)

	log.Infof("Starting MCP server (transport: %s)", o.transport)
	if err := server.Run(); err != nil {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}
