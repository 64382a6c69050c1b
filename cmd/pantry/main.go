package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/pantry/internal"
	pkgconfig "github.com/starford/pantry/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}

	return nil
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file (.yaml or .toml)",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "pantry",
		Usage:  "Kitchen inventory service with weekly menu planning and cross-device sync",
		Action: serve,
		Flags:  []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serve,
				Flags:  []cli.Flag{configFlag()},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the inventory tools to an MCP client over stdio",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
