package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/mindmesh/ai/chat"
	"github.com/hrygo/mindmesh/ai/embedding"
	"github.com/hrygo/mindmesh/ai/llm"
	"github.com/hrygo/mindmesh/ai/metrics"
	"github.com/hrygo/mindmesh/ai/processor"
	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/internal/version"
	"github.com/hrygo/mindmesh/server"
	"github.com/hrygo/mindmesh/store"
	"github.com/hrygo/mindmesh/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "mindmesh",
	Short: `A conversational knowledge-graph server. Chat with persistent memory; idle conversations are distilled into a topic graph.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		exporter := metrics.NewExporter(metrics.DefaultConfig())

		llmService, err := buildLLMService(instanceProfile, exporter)
		if err != nil {
			slog.Error("failed to initialize LLM service", "error", err)
			return
		}

		index := buildVectorIndex(instanceProfile, storeInstance, exporter)

		pipeline := chat.NewPipeline(storeInstance, llmService, index, exporter)
		proc := processor.New(storeInstance, llmService, index, exporter, processor.Config{
			IdleSeconds: instanceProfile.ProcessorIdleSeconds,
			BatchSize:   instanceProfile.ProcessorBatchSize,
		})

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, pipeline, proc, index, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}
		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

func buildLLMService(p *profile.Profile, exporter *metrics.Exporter) (llm.Service, error) {
	if !p.IsLLMEnabled() {
		return nil, fmt.Errorf("no LLM provider configured (set MINDMESH_LLM_PROVIDER)")
	}
	return llm.NewService(&llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	}, exporter)
}

// buildVectorIndex is optional wiring: without embedding credentials the
// server runs with graph-only context.
func buildVectorIndex(p *profile.Profile, st *store.Store, exporter *metrics.Exporter) vector.Index {
	if !p.IsEmbeddingEnabled() {
		slog.Info("embeddings not configured, semantic recall disabled")
		return nil
	}
	embedder, err := embedding.NewService(&embedding.Config{
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Model:      p.EmbeddingModel,
		Dimensions: p.EmbeddingDimensions,
	})
	if err != nil {
		slog.Warn("failed to initialize embedding service, semantic recall disabled", "error", err)
		return nil
	}
	slog.Info("embedding service initialized",
		"model", p.EmbeddingModel, "dimensions", p.EmbeddingDimensions)
	return vector.NewIndex(embedder, st, exporter)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mindmesh")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("MindMesh %s started successfully!\n", p.Version)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
