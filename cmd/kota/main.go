package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"kota/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version    = "0.3.0"
	logger     = zap.NewNop()
	configPath string // overridable via --config flag
	toolsPath  string // overridable via --tools flag
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "kota",
		Short: "kota: a coding assistant extensible with Lua tools and commands",
		Long: `kota loads its settings and custom commands from .kota/config.lua and
its dynamic tools from .kota/tools/. Tools are advertised to the model as
OpenAI function tools; commands are run from the chat with /name.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; os.getenv in the config sees its values
			_ = godotenv.Load()

			var err error
			logger, err = buildLogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.lua (default: "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&toolsPath, "tools", "", "tool manifest file or directory (default: "+defaultToolsPath+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(chatCmd())
	root.AddCommand(runCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(commandsCmd())
	root.AddCommand(skillsCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		printHint(os.Stderr, err)
		os.Exit(1)
	}
}

// printHint writes the corrective hint for errors that carry one.
func printHint(w io.Writer, err error) {
	var nf *config.NotFoundError
	if errors.As(err, &nf) {
		fmt.Fprintln(w, "Hint: "+nf.Hint())
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath
}

func resolveToolsPath() string {
	if toolsPath != "" {
		return config.ExpandPath(toolsPath)
	}
	return defaultToolsPath
}
