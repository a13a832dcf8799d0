package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notemind/internal"
	pkgconfig "github.com/starford/notemind/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// cliOptions keeps stdout for command output.
func cliOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	return []internal.Option{internal.WithConfig(cfg), internal.WithLogger(logger)}, nil
}

func queryText(cmd *cli.Command) (string, error) {
	text := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("query text is required")
	}
	return text, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Reindex(ctx, cmd.Bool("full"), opts...)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return printJSON(stats)
}

func nearest(ctx context.Context, cmd *cli.Command) error {
	text, err := queryText(cmd)
	if err != nil {
		return err
	}
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	results, err := internal.Nearest(ctx, text, int(cmd.Int("k")), opts...)
	if err != nil {
		return fmt.Errorf("nearest: %w", err)
	}
	return printJSON(results)
}

func suggest(ctx context.Context, cmd *cli.Command) error {
	text, err := queryText(cmd)
	if err != nil {
		return err
	}
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	tags, err := internal.SuggestTags(ctx, text, opts...)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	for _, tag := range tags {
		fmt.Println("#" + tag)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := cliOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "notemind",
		Usage:  "Semantic index over a folder of notes: nearest thoughts and tag suggestions",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with the background re-indexer",
				Action: serve,
			},
			{
				Name:  "reindex",
				Usage: "Run one synchronization pass and print its statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Re-extract and re-embed every document"},
				},
				Action: reindex,
			},
			{
				Name:      "nearest",
				Usage:     "Print the thoughts closest to the given text",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "k", Value: 5, Usage: "Number of neighbours"},
				},
				Action: nearest,
			},
			{
				Name:      "suggest",
				Usage:     "Suggest tags for the given text",
				ArgsUsage: "<text>",
				Action:    suggest,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
