// Command catchctl imports catch tables, trains the model and runs
// estimates and predictions from the command line, either against a local
// store or a running service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/apiclient"
	"github.com/kjstillabower/honmoku-catch-service/internal/cache"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
	"github.com/kjstillabower/honmoku-catch-service/internal/service"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
)

// Globals are the flags shared by every command.
type Globals struct {
	Store    string        `help:"SQLite database path." env:"STORE_PATH" default:"data/catch.db"`
	APIURL   string        `name:"api-url" help:"Base URL of a running service. When set, averages, estimate, predict and status go through its API." env:"CATCH_API_URL"`
	TimeZone string        `name:"timezone" help:"Facility timezone." default:"Asia/Tokyo"`
	Fish     string        `help:"Target species." default:"アジ"`
	Lambda   float64       `help:"Ridge penalty for local training." default:"1"`
	MinRows  int           `name:"min-rows" help:"Rows needed before the ridge fit replaces the baseline." default:"10"`
	Timeout  time.Duration `help:"Overall command timeout." default:"1m"`

	stdout io.Writer
	logger *zap.Logger
}

// CLI is the catchctl command tree.
type CLI struct {
	Globals

	Import   ImportCmd   `cmd:"" help:"Import scraped catch CSV files or directories into the store."`
	Train    TrainCmd    `cmd:"" help:"Fit the ridge model on the store and report the result."`
	Averages AveragesCmd `cmd:"" help:"Show weather x weekday visitor averages."`
	Estimate EstimateCmd `cmd:"" help:"Estimate visitors for a date and weather label."`
	Predict  PredictCmd  `cmd:"" help:"Predict the catch for a day."`
	Status   StatusCmd   `cmd:"" help:"Show model and store status."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("catchctl"),
		kong.Description("Honmoku catch prediction tool."),
		kong.UsageOnError(),
	)

	logger, err := observability.NewLogger("catchctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cli.Globals.stdout = os.Stdout
	cli.Globals.logger = logger
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

func (g *Globals) log() *zap.Logger {
	if g.logger == nil {
		return zap.NewNop()
	}
	return g.logger
}

func (g *Globals) context() (context.Context, context.CancelFunc) {
	if g.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), g.Timeout)
}

func (g *Globals) print(v any) error {
	out := g.stdout
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (g *Globals) remote() bool { return g.APIURL != "" }

func (g *Globals) client() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Config{BaseURL: g.APIURL, Logger: g.log()})
}

func (g *Globals) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, g.Store, g.log())
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", g.Store, err)
	}
	return st, nil
}

func (g *Globals) train(ctx context.Context, st *store.Store) (*predictor.LinearModel, error) {
	m := predictor.NewLinearModel(predictor.LinearConfig{Lambda: g.Lambda, MinRows: g.MinRows})
	if _, err := predictor.TrainFromStore(ctx, st, m, g.Fish, g.log()); err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	return m, nil
}

// openService builds a CatchService over the local store with a freshly
// trained model. The caller closes the returned store.
func (g *Globals) openService(ctx context.Context) (*service.CatchService, *store.Store, error) {
	loc, err := time.LoadLocation(g.TimeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("timezone %q: %w", g.TimeZone, err)
	}
	st, err := g.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	m, err := g.train(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	svc := service.NewCatchService(st, cache.NewInMemoryCache(), m, service.Config{
		Location:   loc,
		TargetFish: g.Fish,
		Logger:     g.log(),
	})
	return svc, st, nil
}
