package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/analysis"
	"github.com/kjstillabower/honmoku-catch-service/internal/cache"
	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/ingest"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/service"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
	"github.com/kjstillabower/honmoku-catch-service/internal/validation"
)

type ImportCmd struct {
	Paths   []string `arg:"" name:"path" help:"CSV files or directories to import." type:"path"`
	Pattern string   `help:"File pattern used inside directories." default:"fishing_results_*.csv"`
}

func (c *ImportCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()
	st, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	im := ingest.NewImporter(st, g.log())
	reports := make([]ingest.Report, 0, len(c.Paths))
	var firstErr error
	for _, p := range c.Paths {
		fi, err := os.Stat(p)
		if err != nil {
			return err
		}
		var rep ingest.Report
		if fi.IsDir() {
			rep, err = im.ImportDir(ctx, p, c.Pattern)
		} else {
			rep, err = im.ImportFile(ctx, p)
		}
		reports = append(reports, rep)
		if err != nil {
			g.log().Warn("import failed", zap.String("path", p), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := g.print(reports); err != nil {
		return err
	}
	return firstErr
}

type TrainCmd struct{}

func (c *TrainCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()
	st, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := g.train(ctx, st)
	if err != nil {
		return err
	}
	return g.print(m.Info())
}

type AveragesCmd struct{}

func (c *AveragesCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()
	table, err := g.averagesTable(ctx)
	if err != nil {
		return err
	}
	out := make(map[string]models.VisitorAverageEntry, table.Len())
	for _, k := range table.Keys() {
		e, _ := table.Get(k)
		out[k] = e
	}
	return g.print(out)
}

// averagesTable loads the averages from the service API or computes them
// from the local store.
func (g *Globals) averagesTable(ctx context.Context) (*models.VisitorAverageTable, error) {
	if g.remote() {
		client, err := g.client()
		if err != nil {
			return nil, err
		}
		return client.FetchVisitorAverages(ctx)
	}
	st, err := g.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	svc := service.NewCatchService(st, cache.NewInMemoryCache(), nil, service.Config{TargetFish: g.Fish, Logger: g.log()})
	avg, err := svc.VisitorAverages(ctx)
	if err != nil {
		return nil, err
	}
	if avg.Status != analysis.StatusSuccess {
		return nil, fmt.Errorf("visitor averages: status %s", avg.Status)
	}
	return avg.Table(), nil
}

type EstimateCmd struct {
	Date    string `arg:"" help:"Target date (YYYY-MM-DD)."`
	Weather string `arg:"" help:"Weather label, e.g. 晴れ or 雨."`
}

func (c *EstimateCmd) Run(g *Globals) error {
	if _, err := validation.ValidateDate(c.Date); err != nil {
		return err
	}
	ctx, cancel := g.context()
	defer cancel()
	table, err := g.averagesTable(ctx)
	if err != nil {
		g.log().Warn("visitor averages unavailable, using defaults", zap.Error(err))
		table = nil
	}
	return g.print(estimator.Explain(c.Date, c.Weather, table))
}

type PredictCmd struct {
	Date      string  `required:"" help:"Target date (YYYY-MM-DD)."`
	Weather   string  `required:"" help:"Weather label."`
	WaterTemp float64 `name:"water-temp" required:"" help:"Water temperature in degrees C."`
	Tide      string  `required:"" help:"Tide label, e.g. 大潮."`
	Visitors  int     `help:"Visitor count. Negative estimates it from the averages." default:"-1"`
}

func (c *PredictCmd) input() validation.PredictionInput {
	temp := c.WaterTemp
	in := validation.PredictionInput{
		Date:      c.Date,
		Weather:   c.Weather,
		WaterTemp: &temp,
		Tide:      c.Tide,
	}
	if c.Visitors >= 0 {
		v := c.Visitors
		in.Visitors = &v
	}
	return in
}

func (c *PredictCmd) Run(g *Globals) error {
	in := c.input()
	req, err := validation.ValidatePrediction(in)
	if err != nil {
		return err
	}
	ctx, cancel := g.context()
	defer cancel()

	if g.remote() {
		client, err := g.client()
		if err != nil {
			return err
		}
		res, err := client.SubmitPrediction(ctx, in)
		if err != nil {
			return err
		}
		return g.print(res)
	}

	svc, st, err := g.openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	var res *models.PredictionResult
	if in.Visitors == nil {
		res, err = svc.PredictEstimatingVisitors(ctx, req)
	} else {
		res, err = svc.Predict(ctx, req)
	}
	if err != nil {
		return err
	}
	return g.print(res)
}

type StatusCmd struct {
	Imports int `help:"Number of recent import runs to list for a local store." default:"5"`
}

type localStatus struct {
	models.SystemStatus
	RecentImports []store.ImportRun `json:"recent_imports"`
}

func (c *StatusCmd) Run(g *Globals) error {
	ctx, cancel := g.context()
	defer cancel()

	if g.remote() {
		client, err := g.client()
		if err != nil {
			return err
		}
		st, err := client.FetchStatus(ctx)
		if err != nil {
			return err
		}
		return g.print(st)
	}

	svc, st, err := g.openService(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	out := localStatus{SystemStatus: svc.Status(ctx)}
	if c.Imports > 0 {
		if out.RecentImports, err = st.RecentImports(ctx, c.Imports); err != nil {
			return err
		}
	}
	return g.print(out)
}
