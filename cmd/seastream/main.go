package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeBrosOfficial/seastream/pkg/stream"
)

var (
	apiKey     = ""
	configPath = ""
	testnet    = false
	quiet      = false
	timeout    = 30 * time.Second
)

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	// Parse global flags
	parseGlobalFlags(args)

	switch command {
	case "version":
		fmt.Printf("seastream %s", version)
		if commit != "" {
			fmt.Printf(" (commit %s)", commit)
		}
		if date != "" {
			fmt.Printf(" built %s", date)
		}
		fmt.Println()
		return

	case "listen":
		if len(args) == 0 || isFlag(args[0]) {
			fmt.Fprintf(os.Stderr, "Usage: seastream listen <collection>\n")
			os.Exit(1)
		}
		handleListenCommand(args[0])

	case "help", "--help", "-h":
		showHelp()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		showHelp()
		os.Exit(1)
	}
}

func handleListenCommand(slug string) {
	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := stream.Connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	collection := stream.Collection(slug)
	if slug == "*" {
		collection = stream.CollectionAll
	}

	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	sub, err := client.Subscribe(joinCtx, collection)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to subscribe: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Listening on %s (%s). Press Ctrl+C to stop.\n", collection.Topic(), cfg.Network)

	for {
		event, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nShutting down...")
				return
			}
			fmt.Fprintf(os.Stderr, "❌ Stream ended: %v\n", err)
			os.Exit(1)
		}
		printEvent(event)
	}
}

func buildConfig() (*stream.Config, error) {
	var cfg *stream.Config
	var err error

	if configPath != "" {
		cfg, err = stream.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = stream.DefaultConfig("")
	}

	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENSEA_API_KEY")
	}
	if testnet {
		cfg.Network = stream.NetworkTestnet
	}
	if quiet {
		cfg.QuietMode = true
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("an API key is required (use -k or set OPENSEA_API_KEY)")
	}
	return cfg, nil
}

func printEvent(event *stream.StreamEvent) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		fmt.Printf("[%s] %s\n", event.SentAt.Format(time.RFC3339), event.Kind())
		return
	}
	fmt.Printf("[%s] %s %s\n", event.SentAt.Format(time.RFC3339), event.Kind(), data)
}

func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

func parseGlobalFlags(args []string) {
	for i, arg := range args {
		switch arg {
		case "-k", "--api-key":
			if i+1 < len(args) {
				apiKey = args[i+1]
			}
		case "-c", "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
			}
		case "-t", "--timeout":
			if i+1 < len(args) {
				if d, err := time.ParseDuration(args[i+1]); err == nil {
					timeout = d
				}
			}
		case "--testnet":
			testnet = true
		case "-q", "--quiet":
			quiet = true
		}
	}
}

func showHelp() {
	fmt.Printf("Seastream - OpenSea Stream API Client\n\n")
	fmt.Printf("Usage: seastream <command> [args...]\n\n")

	fmt.Printf("Commands:\n")
	fmt.Printf("  listen <collection>           - Stream live events for a collection slug\n")
	fmt.Printf("  listen \"*\"                    - Stream live events for every collection\n")
	fmt.Printf("  version                       - Show version information\n\n")

	fmt.Printf("Global Flags:\n")
	fmt.Printf("  -k, --api-key <key>           - OpenSea API key (or set OPENSEA_API_KEY)\n")
	fmt.Printf("  -c, --config <path>           - YAML configuration file\n")
	fmt.Printf("  -t, --timeout <duration>      - Subscribe timeout (default: 30s)\n")
	fmt.Printf("      --testnet                 - Use the testnet endpoint\n")
	fmt.Printf("  -q, --quiet                   - Only log warnings and errors\n\n")

	fmt.Printf("Examples:\n")
	fmt.Printf("  # Stream listings and sales for one collection\n")
	fmt.Printf("  seastream listen wandernauts -k <api-key>\n\n")

	fmt.Printf("  # Stream everything on testnet\n")
	fmt.Printf("  OPENSEA_API_KEY=<api-key> seastream listen \"*\" --testnet\n")
}
