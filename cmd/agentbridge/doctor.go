package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/agentbridge/core/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("agentbridge doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults, file not found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Agent backend:")
	fmt.Printf("    %-18s %s\n", "Selected:", cfg.AgentBackend)
	checkAgentBinary(cfg)

	fmt.Println()
	fmt.Println("  Approved directory:")
	fmt.Printf("    %-18s %s", "Path:", cfg.ApprovedDirectory)
	if cfg.ApprovedDirectory == "" {
		fmt.Println(" (NOT CONFIGURED)")
	} else if info, err := os.Stat(cfg.ApprovedDirectory); err != nil || !info.IsDir() {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Println()
	fmt.Println("  Session store:")
	if cfg.Database.PostgresDSN == "" {
		fmt.Println("    in-memory (AGENTBRIDGE_POSTGRES_DSN not set)")
	} else {
		checkPostgres(cfg.Database.PostgresDSN)
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-18s %s (%s)\n", "Exporter:", cfg.Telemetry.Endpoint, protocolOrDefault(cfg.Telemetry.Protocol))
	} else {
		fmt.Println("    disabled")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkAgentBinary(cfg *config.Config) {
	var binary string
	switch cfg.AgentBackend {
	case config.BackendPrimaryCLI:
		binary = cfg.Binary.PrimaryCLIPath
		if binary == "" {
			binary = "claude"
		}
	case config.BackendAlternateCLI:
		binary = cfg.Binary.AlternateCLIPath
		if binary == "" {
			binary = "cursor-agent"
		}
	case config.BackendSDK:
		fmt.Printf("    %-18s no subprocess (in-process SDK)\n", "Binary:")
		return
	default:
		fmt.Printf("    %-18s unknown backend %q\n", "Binary:", cfg.AgentBackend)
		return
	}
	checkBinary(binary)
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-18s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-18s %s\n", name+":", path)
	}
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	switch {
	case enabled && hasCredentials:
		status = "enabled"
	case enabled:
		status = "enabled (missing token)"
	}
	fmt.Printf("    %-18s %s\n", name+":", status)
}

func checkPostgres(dsn string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Printf("    %-18s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		fmt.Printf("    %-18s PING FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-18s connected\n", "Status:")
}

func protocolOrDefault(p string) string {
	if p == "" {
		return "grpc"
	}
	return p
}
