package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/llmguard/llmguard/internal/breaker"
	"github.com/llmguard/llmguard/internal/bridge"
	"github.com/llmguard/llmguard/internal/cache"
	"github.com/llmguard/llmguard/internal/config"
	"github.com/llmguard/llmguard/internal/llm"
	"github.com/llmguard/llmguard/internal/retry"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: llmguard [flags] <command> [args]

Commands:
  chat <prompt>   Send a chat completion and print the answer
  models          List the models the endpoint advertises
  check           Probe the endpoint and report connection status

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./configs/config.yaml)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "llmguard: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.LogLevel, cfg.LogFormat)

	client := buildClient(cfg)
	defer client.Close()

	if err := run(client, cfg, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "llmguard: %v\n", err)
		os.Exit(1)
	}
}

func buildClient(cfg *config.Config) *llm.Client {
	var memory cache.Store
	var persistent cache.Store
	if cfg.CacheEnabled {
		memory = cache.NewMemory(cfg.CacheSize, cfg.GetCacheTTL())
		if cfg.Redis.Enabled {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.GetRedisAddr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			persistent = cache.NewRedis(rdb, cfg.GetCacheTTL())
			log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("Persistent cache enabled")
		}
	}

	rpm := 0
	if cfg.RateLimit.Enabled {
		rpm = cfg.RateLimit.RequestsPerMinute
	}

	return llm.NewClient(llm.ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Timeout:           cfg.GetTimeout(),
		Breaker:           breaker.New("llm", cfg.CircuitBreaker.FailMax, cfg.CircuitBreaker.GetResetTimeout()),
		Cache:             memory,
		PersistentCache:   persistent,
		CacheTTL:          cfg.GetCacheTTL(),
		RequestsPerMinute: rpm,
	})
}

func run(client *llm.Client, cfg *config.Config, command string, args []string) error {
	switch command {
	case "chat":
		if len(args) == 0 {
			return fmt.Errorf("chat requires a prompt")
		}
		prompt := strings.Join(args, " ")
		rcfg := retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.GetInitialDelay(),
			Multiplier:   cfg.Retry.Multiplier,
			Retryable:    llm.IsRetryable,
		}
		// The call deadline covers every attempt, not just the first.
		budget := time.Duration(cfg.Retry.MaxAttempts) * cfg.GetTimeout()
		resp, err := bridge.Call(budget, func(ctx context.Context) (*llm.ChatResponse, error) {
			return retry.Do(ctx, rcfg, func(ctx context.Context) (*llm.ChatResponse, error) {
				return client.ChatCompletion(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, nil)
			})
		})
		if err != nil {
			return err
		}
		content, err := resp.FirstContent()
		if err != nil {
			return err
		}
		fmt.Println(content)
		return nil

	case "models":
		models, err := bridge.Call(cfg.GetTimeout(), func(ctx context.Context) ([]llm.ModelDescriptor, error) {
			return client.ListModels(ctx)
		})
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Println(m.ID)
		}
		return nil

	case "check":
		status, err := bridge.Call(cfg.GetTimeout(), func(ctx context.Context) (*llm.ConnectionStatus, error) {
			return client.TestConnection(ctx), nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("connected:    %v\n", status.Connected)
		fmt.Printf("model loaded: %v\n", status.ModelLoaded)
		if status.Connected && status.ModelLoaded {
			fmt.Printf("latency:      %.1f ms\n", status.LatencyMS)
		}
		if status.Error != "" {
			fmt.Printf("error:        %s\n", status.Error)
		}
		if !status.Connected {
			return fmt.Errorf("endpoint unreachable")
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
