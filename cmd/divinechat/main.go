package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/divinechat/ai/chat"
	"github.com/hrygo/divinechat/ai/core/llm"
	"github.com/hrygo/divinechat/ai/metrics"
	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/internal/version"
	"github.com/hrygo/divinechat/server"
	"github.com/hrygo/divinechat/store"
	"github.com/hrygo/divinechat/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "divinechat",
		Short: `A chat relay that streams language-model replies and keeps every conversation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide their environment explicitly.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := loadProfile()
			if err := instanceProfile.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, "invalid configuration:", err)
				os.Exit(1)
			}
			slog.SetDefault(newLogger(instanceProfile))

			if err := serve(instanceProfile); err != nil {
				slog.Error("server exited", "error", err)
				os.Exit(1)
			}
		},
	}
)

func loadProfile() *profile.Profile {
	instanceProfile := &profile.Profile{
		Mode:           viper.GetString("mode"),
		Addr:           viper.GetString("addr"),
		Port:           viper.GetInt("port"),
		UNIXSock:       viper.GetString("unix-sock"),
		Data:           viper.GetString("data"),
		Driver:         viper.GetString("driver"),
		DSN:            viper.GetString("dsn"),
		Secret:         viper.GetString("secret"),
		LogLevel:       viper.GetString("log-level"),
		LLMProvider:    viper.GetString("llm-provider"),
		LLMModel:       viper.GetString("llm-model"),
		LLMBaseURL:     viper.GetString("llm-base-url"),
		SystemPrompt:   viper.GetString("system-prompt"),
		AllowedOrigins: profile.SplitList(viper.GetString("allowed-origins")),
		Version:        version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	return instanceProfile
}

func serve(instanceProfile *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return err
	}
	storeInstance := store.New(dbDriver)
	if err := dbDriver.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	if !instanceProfile.IsLLMConfigured() {
		slog.Warn("no LLM API key configured, upstream calls will likely be rejected",
			"provider", instanceProfile.LLMProvider,
		)
	}
	llmService, err := llm.NewService(&llm.Config{
		Provider:    instanceProfile.LLMProvider,
		Model:       instanceProfile.LLMModel,
		APIKey:      instanceProfile.LLMAPIKey,
		BaseURL:     instanceProfile.LLMBaseURL,
		MaxTokens:   instanceProfile.LLMMaxTokens,
		Temperature: instanceProfile.LLMTemperature,
		Timeout:     instanceProfile.LLMTimeout,
	})
	if err != nil {
		_ = storeInstance.Close()
		return fmt.Errorf("create llm service: %w", err)
	}
	slog.Info("LLM service initialized",
		"provider", instanceProfile.LLMProvider,
		"model", instanceProfile.LLMModel,
	)
	// Best effort: a failed warmup does not affect startup.
	go func() {
		warmupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		llmService.Warmup(warmupCtx)
	}()

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	bus := chat.NewBus()
	relay := chat.NewRelay(storeInstance, llmService, bus, chat.Config{
		SystemPrompt: instanceProfile.SystemPrompt,
		Model:        instanceProfile.LLMModel,
		Metrics:      exporter,
	})

	s, err := server.NewServer(ctx, instanceProfile, storeInstance, relay, bus, exporter)
	if err != nil {
		_ = storeInstance.Close()
		return fmt.Errorf("create server: %w", err)
	}

	printGreetings(instanceProfile)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown(context.Background())
		return nil
	})
	return g.Wait()
}

func newLogger(p *profile.Profile) *slog.Logger {
	opts := &slog.HandlerOptions{Level: p.SlogLevel()}
	if p.Mode == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28082)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28082, "port of server")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to the unix socket, overrides --addr and --port")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres, mongo)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign access tokens")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider (openai, deepseek, zai, siliconflow, dashscope, openrouter, ollama)")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model, defaults per provider")
	rootCmd.PersistentFlags().String("llm-base-url", "", "OpenAI-compatible base URL, defaults per provider")
	rootCmd.PersistentFlags().String("system-prompt", "", "instruction prepended to every upstream call")
	rootCmd.PersistentFlags().String("allowed-origins", "", "comma-separated browser origins allowed to call the API, empty allows any")

	for _, key := range []string{
		"mode", "addr", "port", "unix-sock", "data", "driver", "dsn", "secret", "log-level",
		"llm-provider", "llm-model", "llm-base-url", "system-prompt", "allowed-origins",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("divinechat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(chatCmd, tokenCmd)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("DivineChat %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("LLM: %s (%s)\n", profile.LLMProvider, profile.LLMModel)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.UNIXSock) == 0 {
		if len(profile.Addr) == 0 {
			fmt.Printf("Server running on port %d\n", profile.Port)
		} else {
			fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		}
	} else {
		fmt.Printf("Server running on unix socket: %s\n", profile.UNIXSock)
	}
	fmt.Println()
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintf(os.Stderr, "\n  The %s server is not reachable.\n", profile.Driver)
		fmt.Fprintf(os.Stderr, "  Or use SQLite for development: --driver=sqlite --data=./data\n")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintf(os.Stderr, "\n  PostgreSQL SSL configuration mismatch, add ?sslmode=disable to your DSN.\n")
	case strings.Contains(errMsg, "password authentication failed") || strings.Contains(errMsg, "auth"):
		fmt.Fprintf(os.Stderr, "\n  Authentication failed, check the credentials in the DSN or .env file.\n")
	default:
		fmt.Fprintln(os.Stderr, "\n  Error:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
