package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run connectivity diagnostics for every enabled gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func levelMark(level string) string {
	switch level {
	case gateway.LevelPass:
		return "OK  "
	case gateway.LevelWarn:
		return "WARN"
	case gateway.LevelFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func runDoctor() {
	setupLogging()
	fmt.Println("glowire doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}
	fmt.Println()

	cfg := loadConfig()
	mgr, err := buildManager(cfg)
	if err != nil {
		fmt.Printf("  gateway setup error: %s\n", err)
		os.Exit(1)
	}

	names := mgr.Names()
	if len(names) == 0 {
		fmt.Println("  no gateways enabled")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false
	for _, name := range names {
		report, err := mgr.TestConnectivity(ctx, name)
		if err != nil {
			fmt.Printf("  %s: %s\n", name, err)
			failed = true
			continue
		}

		fmt.Printf("  %s: %s\n", name, report.Verdict)
		for _, check := range report.Checks {
			fmt.Printf("    [%s] %s\n", levelMark(check.Level), check.Message)
			if check.Suggestion != "" {
				fmt.Printf("           -> %s\n", check.Suggestion)
			}
		}
		if report.Verdict == gateway.LevelFail {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
