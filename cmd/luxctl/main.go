// luxctl searches hotels and normalizes tool payloads from the command line.
//
// Usage:
//
//	luxctl normalize --file payload.json --format table
//	luxctl search --check-in 2025-12-01 --check-out 2025-12-03 --city LON
//	luxctl tools
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/alex-user-go/luxsearch/internal/app"
	"github.com/alex-user-go/luxsearch/internal/config"
	"github.com/alex-user-go/luxsearch/internal/handler"
	"github.com/alex-user-go/luxsearch/internal/obs"
	"github.com/alex-user-go/luxsearch/internal/providers"
	"github.com/alex-user-go/luxsearch/internal/render"
	"github.com/alex-user-go/luxsearch/internal/search"
	"github.com/alex-user-go/luxsearch/internal/search/normalize"
	"github.com/alex-user-go/luxsearch/internal/search/types"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "luxctl",
		Usage:   "Search hotels and normalize tool payloads",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"LUX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LUX_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			normalizeCommand(),
			searchCommand(),
			toolsCommand(),
		},
	}
}

func formatFlag(def string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "format",
		Value: def,
		Usage: "Output format (table, json)",
	}
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, _ := obs.NewLogger(c.App.ErrWriter, c.String("log-level"), "text")
	return cfg, logger, nil
}

// =============================================================================
// NORMALIZE COMMAND
// =============================================================================

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "normalize",
		Usage: "Normalize a backend payload read from a file or stdin",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Payload JSON file (default: stdin)",
			},
			formatFlag("json"),
		},
		Action: runNormalize,
	}
}

func runNormalize(c *cli.Context) error {
	var (
		data []byte
		err  error
	)
	if path := c.String("file"); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(c.App.Reader)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	policy := normalize.DefaultPolicy()
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		policy = app.Policy(cfg.Normalize)
	}

	logger, _ := obs.NewLogger(c.App.ErrWriter, c.String("log-level"), "text")
	resp := normalize.New(policy, logger).Normalize(payload)

	return output(c, resp)
}

// =============================================================================
// SEARCH COMMAND
// =============================================================================

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search every enabled backend for a stay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "check-in", Usage: "Check-in date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "check-out", Usage: "Check-out date (YYYY-MM-DD)", Required: true},
			&cli.StringFlag{Name: "city", Usage: "IATA city code, e.g. LON"},
			&cli.IntFlag{Name: "adults", Value: 2, Usage: "Number of adults"},
			&cli.Float64Flag{Name: "max-price", Usage: "Maximum nightly price in GBP"},
			&cli.BoolFlag{Name: "indoor-pool", Usage: "Require an indoor pool"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Free-text request"},
			formatFlag("table"),
		},
		Action: runSearch,
	}
}

func runSearch(c *cli.Context) error {
	stay := providers.Stay{
		CheckIn:         c.String("check-in"),
		CheckOut:        c.String("check-out"),
		CityCode:        strings.ToUpper(c.String("city")),
		Adults:          c.Int("adults"),
		WantsIndoorPool: c.Bool("indoor-pool"),
		MaxPriceGBP:     c.Float64("max-price"),
		Query:           c.String("query"),
	}
	if err := handler.ValidateStay(stay); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics(logger)
	aggregator := search.NewAggregator(
		app.Providers(cfg, logger),
		normalize.New(app.Policy(cfg.Normalize), logger),
		cfg.SearchTimeout(),
		metrics,
		logger,
	)

	result, err := aggregator.Search(c.Context, stay)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if result.ProvidersFailed > 0 {
		fmt.Fprintf(c.App.ErrWriter, "%d of %d backends failed\n", result.ProvidersFailed, result.ProvidersTotal)
	}

	if c.String("format") == "table" {
		if _, err := fmt.Fprintf(c.App.Writer, "%s\n\n", stayLine(stay)); err != nil {
			return err
		}
	}
	return output(c, result.Response)
}

// stayLine summarizes the stay above the results table.
func stayLine(stay providers.Stay) string {
	city := stay.CityCode
	if city == "" {
		city = "any city"
	}
	return fmt.Sprintf("%s, %s to %s, %d night(s), %d adult(s)",
		city, stay.CheckIn, stay.CheckOut, stay.Nights(), stay.Adults)
}

// =============================================================================
// TOOLS COMMAND
// =============================================================================

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:   "tools",
		Usage:  "List the tools each enabled backend advertises",
		Action: runTools,
	}
}

func runTools(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, b := range cfg.EnabledBackends() {
		p := providers.NewMCPProvider(b.Name, b.URL, b.Tool, providers.Options{
			Timeout: b.Timeout(),
			Retry:   cfg.Retry,
			Logger:  logger,
		})
		tools, err := listTools(c.Context, p)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name, err)
		}
		for _, t := range tools {
			rows = append(rows, []string{b.Name, t.Name, t.Description})
		}
	}

	return render.Table(c.App.Writer, []string{"BACKEND", "TOOL", "DESCRIPTION"}, rows)
}

func listTools(ctx context.Context, p *providers.MCPProvider) ([]providers.Tool, error) {
	if _, err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	return p.ListTools(ctx)
}

func output(c *cli.Context, resp types.Response) error {
	switch c.String("format") {
	case "table":
		return render.Items(c.App.Writer, resp)
	case "json":
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}
}
