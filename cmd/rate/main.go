package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"filing_rating/pkg/core/config"
	"filing_rating/pkg/core/logging"
	"filing_rating/pkg/core/pipeline"
	"filing_rating/pkg/core/rating"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"
)

func main() {
	godotenv.Load()

	app := cli.NewApp()
	app.Name = "rate"
	app.Usage = "rate companies from their latest SEC filings"
	app.ArgsUsage = "TICKER..."
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config,c", Value: "config/rating.yaml", Usage: "service configuration file"},
		&cli.StringFlag{Name: "format,f", Value: "markdown", Usage: "output format: json or markdown"},
		&cli.IntFlag{Name: "offline-narrative", Usage: "use this fixed narrative rating (1-5) instead of calling an LLM"},
		&cli.BoolFlag{Name: "no-store", Usage: "do not persist reports even when a database is configured"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowAppHelpAndExit(c, 2)
	}
	format := c.String("format")
	if format != "json" && format != "markdown" {
		return cli.NewExitError(fmt.Sprintf("unknown format %q", format), 2)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	logger := logging.New(cfg.Log.Level, true)

	opts := pipeline.BuildOptions{DisableStore: c.Bool("no-store")}
	if n := c.Int("offline-narrative"); n != 0 {
		opts.Rater = rating.StaticRater{Rating: n, Rationale: "fixed offline narrative rating"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wiring, err := pipeline.Build(ctx, cfg, logger, opts)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer wiring.Close()

	failed := 0
	for _, ticker := range c.Args() {
		report, err := wiring.Analyzer.Analyze(ctx, ticker)
		if err != nil {
			logger.Error().Err(err).Str("symbol", ticker).Msg("Analysis failed")
			failed++
			continue
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
		default:
			fmt.Println(rating.RenderMarkdown(report))
		}
	}

	if failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d of %d analyses failed", failed, c.NArg()), 1)
	}
	return nil
}
