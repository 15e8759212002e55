package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/cache"
	"github.com/clinical-fact-validator/internal/config"
	"github.com/clinical-fact-validator/internal/mcp"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/setup"
	"github.com/clinical-fact-validator/internal/store"
)

var (
	mcpClientConfig string
	mcpBinary       string
	mcpDataDir      string
	mcpTransport    string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for running the validator as a Model Context Protocol server and registering it with desktop MCP clients.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server. Reports are stored in SQLite under
CLINVAL_DATA_DIR and cached in memory.

By default the server speaks JSON-RPC over stdio. Use --port to serve streamable
HTTP instead.`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

var mcpInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the MCP server with the desktop client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entry, err := setup.Install(setup.Options{
			ConfigPath: mcpClientConfig,
			BinaryPath: mcpBinary,
			DataDir:    mcpDataDir,
			Transport:  mcpTransport,
		})
		if err != nil {
			return err
		}
		cmd.Printf("Registered %s -> %s\n", setup.ServerName, entry.Command)
		return nil
	},
}

var mcpUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the MCP server from the desktop client",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		removed, err := setup.Uninstall(mcpClientConfig)
		if err != nil {
			return err
		}
		if removed {
			cmd.Printf("Removed %s\n", setup.ServerName)
		} else {
			cmd.Printf("%s was not registered\n", setup.ServerName)
		}
		return nil
	},
}

var mcpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the desktop client registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := setup.GetStatus(mcpClientConfig)
		if err != nil {
			return err
		}
		cmd.Printf("Config:      %s\n", status.ConfigPath)
		cmd.Printf("Registered:  %t\n", status.Registered)
		if status.Registered {
			cmd.Printf("Binary:      %s\n", status.BinaryPath)
		}
		if status.DataDir != "" {
			cmd.Printf("Data dir:    %s\n", status.DataDir)
		}
		for _, issue := range status.Issues {
			cmd.Printf("  ! %s\n", issue)
		}
		return nil
	},
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")

	for _, c := range []*cobra.Command{mcpInstallCmd, mcpUninstallCmd, mcpStatusCmd} {
		c.Flags().StringVar(&mcpClientConfig, "client-config", "", "client configuration file (default: platform location)")
	}
	mcpInstallCmd.Flags().StringVar(&mcpBinary, "binary", "", "path to the mcp-server binary (default: searched)")
	mcpInstallCmd.Flags().StringVar(&mcpDataDir, "data-dir", "", "data directory passed to the server")
	mcpInstallCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "transport: stdio or http")

	mcpCmd.AddCommand(mcpServeCmd, mcpInstallCmd, mcpUninstallCmd, mcpStatusCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	cfg := config.LoadLiteConfig()
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	logger := newLogger(cmd)

	reports, err := store.NewSQLiteStore(cfg.ReportDBPath())
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer reports.Close()

	svc := service.NewValidationService(cfg.Validation(), logger,
		service.WithStore(reports),
		service.WithCache(cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)),
	)
	server, err := mcp.NewServer(svc, "", logger)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}
	return server.Run(cmd.Context())
}
