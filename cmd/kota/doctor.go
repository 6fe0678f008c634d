package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kota/internal/config"
	"kota/internal/skill"
	"kota/internal/tool"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your kota setup",
		Long: `Verifies that the config program, tool manifests, skills directory and
audit database are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfgPath := resolveConfigPath()
			fmt.Printf("kota doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				nf := &config.NotFoundError{Path: cfgPath}
				fmt.Printf("\nHint: %s\n", nf.Hint())
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config runs and validates
			cfg, err := config.Load(cfgPath, logger)
			if err != nil {
				printFail("Config program", err.Error())
				failed++
				cfg = config.Defaults()
			} else {
				printPass("Config program", fmt.Sprintf("model %s, %d command(s)", cfg.Settings.Model, len(cfg.Commands)))
				passed++
				for _, w := range cfg.Warnings {
					printWarn("Config", w)
					warned++
				}
			}

			// 3. API key
			if cfg.Settings.APIKey == "" {
				printWarn("API key", "not set (use api_key = os.getenv(\"OPENAI_API_KEY\"))")
				warned++
			} else {
				printPass("API key", "configured")
				passed++
			}

			// 4. Tool manifests
			res, err := tool.LoadTools(ctx, resolveToolsPath(), logger)
			switch {
			case err != nil:
				printFail("Tool manifests", err.Error())
				failed++
			case len(res.Errors) > 0:
				for _, e := range res.Errors {
					printFail("Tool manifests", e.Error())
					failed++
				}
			default:
				printPass("Tool manifests", fmt.Sprintf("%d tool(s) from %s", len(res.Tools), resolveToolsPath()))
				passed++
			}

			// 5. Skills
			skills, err := skill.LoadFromDirectory(config.ExpandPath(cfg.Settings.SkillsDir), logger)
			if err != nil {
				printWarn("Skills", err.Error())
				warned++
			} else {
				printPass("Skills", fmt.Sprintf("%d installed in %s", len(skills), cfg.Settings.SkillsDir))
				passed++
			}

			// 6. Audit database writable
			dbPath := config.ExpandPath(cfg.Settings.AuditDB)
			if err := checkDatabase(ctx, dbPath); err != nil {
				printFail("Audit database", err.Error())
				failed++
			} else {
				printPass("Audit database", dbPath)
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running kota.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nkota should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! kota is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(ctx context.Context, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
