// Command evergreenctl ingests source documents into an Evergreen index and
// queries it from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/evergreen/internal/version"
	"github.com/kailas-cloud/evergreen/pkg/evergreen"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "evergreenctl",
		Usage:   "Ingest and query an Evergreen index",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Aliases:  []string{"t"},
				Usage:    "Tenant id every command runs against",
				EnvVars:  []string{"EVERGREEN_TENANT"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Config environment, reads config/{env}.yaml",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Explicit config file, overrides --env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a JSONL file or every .jsonl file under a directory",
				ArgsUsage: "<file.jsonl|dir>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Documents per batch",
						Value: defaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Documents processed in parallel within a batch (0 uses the config value)",
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Ingest lines appended to .jsonl files in a directory",
				ArgsUsage: "<dir>",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "existing",
						Usage: "Ingest files already present before watching",
						Value: true,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Ask a question",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of sources (1-100)",
						Value: 10,
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Metadata filter key=value, repeat a key to match any value",
					},
					&cli.BoolFlag{
						Name:  "no-graph",
						Usage: "Skip entity augmentation",
					},
					&cli.BoolFlag{
						Name:  "no-synthesis",
						Usage: "Return sources only",
					},
				},
			},
			{
				Name:      "entity",
				Usage:     "Show what the graph knows about an entity",
				ArgsUsage: "<name>",
				Action:    entityCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Entity type, e.g. person or organization",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document and everything derived from it",
				ArgsUsage: "<doc-id>",
				Action:    deleteCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	return nil
}

// openTenant connects the SDK and scopes it to --tenant.
func openTenant(c *cli.Context) (*evergreen.Client, *evergreen.TenantClient, error) {
	opts := []evergreen.Option{
		evergreen.WithEnv(c.String("env")),
		evergreen.WithLogger(slog.Default()),
	}
	if path := c.String("config"); path != "" {
		opts = append(opts, evergreen.WithConfigFile(path))
	}

	client, err := evergreen.New(c.Context, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Tenant(c.String("tenant")), nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return strings.Join(c.Args().Slice(), " "), nil
}
