package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ostanin/pdeck/internal/api"
	"github.com/ostanin/pdeck/internal/bitable"
	"github.com/ostanin/pdeck/internal/config"
	"github.com/ostanin/pdeck/internal/storage"
	"github.com/ostanin/pdeck/internal/syncer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pdeck daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running pdeck daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pdeck daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "pdeck.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "pdeck version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// The daemon runs without remote credentials (local reads still work);
	// anything that needs the remote will fail with a config error.
	if err := config.ValidateRemote(cfg); err != nil {
		printWarning("%v", err)
	}

	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	tokens := bitable.NewTokenManager(
		cfg.Bitable.BaseURL,
		cfg.Bitable.AppID,
		cfg.Bitable.AppSecret,
		time.Duration(cfg.Bitable.TokenTTLMinutes)*time.Minute,
		store,
	)
	remote := bitable.NewClient(bitable.Options{
		BaseURL:     cfg.Bitable.BaseURL,
		AppToken:    cfg.Bitable.AppToken,
		TableID:     cfg.Bitable.TableID,
		Tokens:      tokens,
		PageSize:    cfg.Sync.PageSize,
		PageDelay:   time.Duration(cfg.Sync.PageDelayMs) * time.Millisecond,
		MaxRecords:  cfg.Sync.MaxRecords,
		WarnRecords: cfg.Sync.WarnRecords,
	})

	svc := syncer.New(remote, store, time.Duration(cfg.Sync.CacheTTLSeconds)*time.Second)
	defer svc.Close()

	if err := svc.ResumeAutoRefresh(); err != nil {
		slog.Warn("resuming auto refresh failed", "error", err)
	}
	go store.RunCacheSweeper(ctx, time.Duration(cfg.Sync.SweepIntervalSeconds)*time.Second)

	handler := api.NewHandler(api.Deps{Service: svc, Token: apiToken, Version: version})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio, so assistants launched with `pdeck start` get
	// the prompt tools directly.
	mcpSrv := api.NewMCPServer(api.MCPDeps{Service: svc, Version: version})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "pdeck listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("pdeck is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop pdeck (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to pdeck (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if err := config.ValidateRemote(cfg); err != nil {
		printStatus("Remote", "not configured")
	} else {
		printStatus("Remote", "%s (table %s)", cfg.Bitable.BaseURL, cfg.Bitable.TableID)
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			if infoResp, err := c.get(context.Background(), "/snapshot"); err == nil {
				var result struct {
					Snapshot struct {
						Count       int    `json:"count"`
						LastRefresh string `json:"last_refresh"`
					} `json:"snapshot"`
				}
				if decodeData(infoResp, &result) == nil {
					printStatus("Prompts", "%d", result.Snapshot.Count)
					printStatus("Last refresh", "%s", orNever(result.Snapshot.LastRefresh))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
