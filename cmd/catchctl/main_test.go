package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/ingest"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
	"github.com/kjstillabower/honmoku-catch-service/internal/testhelpers"
)

// run parses args as catchctl would and returns what the command printed.
func run(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("catchctl"))
	if err != nil {
		t.Fatalf("kong.New() error = %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	cli.Globals.stdout = &out
	cli.Globals.logger = zap.NewNop()
	err = kctx.Run(&cli.Globals)
	return out.Bytes(), err
}

func seededDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catch.db")
	st, err := store.Open(context.Background(), path, zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	if _, err := st.UpsertRecords(context.Background(), testhelpers.SampleRecords()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestImportThenStatus(t *testing.T) {
	t.Setenv("CATCH_API_URL", "")
	dir := t.TempDir()
	csv := "日付,天気,来場者数,魚種,釣果数\n2025/08/01,晴れ,310名,アジ,40匹\n2025/08/02,雨,120名,アジ,12匹\n"
	if err := os.WriteFile(filepath.Join(dir, "fishing_results_202508.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(t.TempDir(), "catch.db")

	out, err := run(t, "--store", db, "import", dir)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	var reports []ingest.Report
	if err := json.Unmarshal(out, &reports); err != nil {
		t.Fatalf("decode import output: %v\n%s", err, out)
	}
	if len(reports) != 1 || reports[0].RowsUpserted != 2 {
		t.Fatalf("reports = %+v, want 2 rows upserted", reports)
	}

	out, err = run(t, "--store", db, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	var st localStatus
	if err := json.Unmarshal(out, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Records != 2 || st.Status.Model != "loaded" {
		t.Errorf("status = %+v, want 2 records and a loaded model", st.SystemStatus)
	}
	if st.ModelInfo == nil || !st.ModelInfo.Baseline {
		t.Errorf("model info = %+v, want baseline below min rows", st.ModelInfo)
	}
	if len(st.RecentImports) != 1 || st.RecentImports[0].RowsUpserted != 2 {
		t.Errorf("recent imports = %+v, want one run with 2 rows", st.RecentImports)
	}
}

func TestImport_MissingPath(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catch.db")
	if _, err := run(t, "--store", db, "import", filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("import of a missing file: want error")
	}
}

func TestTrain(t *testing.T) {
	out, err := run(t, "--store", seededDB(t), "train")
	if err != nil {
		t.Fatalf("train error = %v", err)
	}
	var info models.ModelInfo
	if err := json.Unmarshal(out, &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Baseline || info.TrainingRows != testhelpers.SampleDays {
		t.Errorf("info = %+v, want %d rows without baseline", info, testhelpers.SampleDays)
	}
}

func TestAveragesAndEstimate_Local(t *testing.T) {
	t.Setenv("CATCH_API_URL", "")
	db := seededDB(t)

	out, err := run(t, "--store", db, "averages")
	if err != nil {
		t.Fatalf("averages error = %v", err)
	}
	var avg map[string]models.VisitorAverageEntry
	if err := json.Unmarshal(out, &avg); err != nil {
		t.Fatalf("decode averages: %v", err)
	}
	if e, ok := avg["sunny_saturday"]; !ok || e.Average != 400 {
		t.Errorf("sunny_saturday = %+v, %v, want 400", e, ok)
	}

	out, err = run(t, "--store", db, "estimate", "2025-06-07", "晴れ")
	if err != nil {
		t.Fatalf("estimate error = %v", err)
	}
	var est estimator.Estimate
	if err := json.Unmarshal(out, &est); err != nil {
		t.Fatalf("decode estimate: %v", err)
	}
	if est.Visitors != 400 || est.Source != estimator.SourceExact || est.Weekday != models.Saturday {
		t.Errorf("estimate = %+v, want 400 exact on saturday", est)
	}
}

func TestEstimate_EmptyStoreUsesDefaults(t *testing.T) {
	t.Setenv("CATCH_API_URL", "")
	db := filepath.Join(t.TempDir(), "catch.db")
	out, err := run(t, "--store", db, "estimate", "2025-06-09", "雨")
	if err != nil {
		t.Fatalf("estimate error = %v", err)
	}
	var est estimator.Estimate
	if err := json.Unmarshal(out, &est); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if est.Source != estimator.SourceDefault || est.Visitors != estimator.DefaultVisitors(models.WeatherRainy) {
		t.Errorf("estimate = %+v, want rainy default", est)
	}
}

func TestEstimate_InvalidDate(t *testing.T) {
	if _, err := run(t, "--store", filepath.Join(t.TempDir(), "c.db"), "estimate", "2025-13-40", "晴れ"); err == nil {
		t.Fatal("estimate with invalid date: want error")
	}
}

func TestPredict_Local(t *testing.T) {
	t.Setenv("CATCH_API_URL", "")
	db := seededDB(t)

	tests := []struct {
		name          string
		args          []string
		wantVisitors  int
		wantEstimated bool
	}{
		{"explicit visitors", []string{"--visitors", "300"}, 300, false},
		{"estimated visitors", nil, 400, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"--store", db, "predict", "--date", "2025-06-07", "--weather", "晴れ", "--water-temp", "19.5", "--tide", "大潮"}, tc.args...)
			out, err := run(t, args...)
			if err != nil {
				t.Fatalf("predict error = %v", err)
			}
			var res models.PredictionResult
			if err := json.Unmarshal(out, &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.InputConditions.Visitors != tc.wantVisitors || res.VisitorsEstimated != tc.wantEstimated {
				t.Errorf("input = %+v estimated = %v, want %d/%v", res.InputConditions, res.VisitorsEstimated, tc.wantVisitors, tc.wantEstimated)
			}
			if res.CatchCount < 0 {
				t.Errorf("catch_count = %d, want non-negative", res.CatchCount)
			}
		})
	}
}

func TestPredict_MissingRequiredFlag(t *testing.T) {
	_, err := run(t, "predict", "--date", "2025-06-07", "--weather", "晴れ", "--tide", "大潮")
	if err == nil {
		t.Fatal("predict without --water-temp: want parse error")
	}
}

func TestPredict_OutOfRangeRejectedBeforeStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "dir", "catch.db")
	_, err := run(t, "--store", db, "predict", "--date", "2025-06-07", "--weather", "晴れ", "--water-temp", "99", "--tide", "大潮")
	if err == nil {
		t.Fatal("predict with water temp 99: want validation error")
	}
}

func TestRemoteCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/predict-aji":
			_, _ = io.WriteString(w, `{"success":true,"prediction":{"catch_count":87,"confidence":"High","historical_status":"future","input_conditions":{"date":"2025-07-05","weather":"晴れ","visitors":400,"water_temp":21,"tide":"大潮"}}}`)
		case "/api/status":
			_, _ = io.WriteString(w, `{"success":true,"status":{"api":"running","model":"loaded"},"records":1234}`)
		case "/api/visitor-averages":
			_, _ = io.WriteString(w, `{"averages":{"sunny_saturday":{"average":412.6,"count":4}},"status":"success"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := run(t, "--api-url", srv.URL, "predict", "--date", "2025-07-05", "--weather", "晴れ", "--water-temp", "21", "--tide", "大潮")
	if err != nil {
		t.Fatalf("remote predict error = %v", err)
	}
	var res models.PredictionResult
	if err := json.Unmarshal(out, &res); err != nil || res.CatchCount != 87 {
		t.Errorf("remote predict = %+v, %v", res, err)
	}

	out, err = run(t, "--api-url", srv.URL, "status")
	if err != nil {
		t.Fatalf("remote status error = %v", err)
	}
	var st models.SystemStatus
	if err := json.Unmarshal(out, &st); err != nil || st.Records != 1234 {
		t.Errorf("remote status = %+v, %v", st, err)
	}

	out, err = run(t, "--api-url", srv.URL, "estimate", "2025-06-07", "晴れ")
	if err != nil {
		t.Fatalf("remote estimate error = %v", err)
	}
	var est estimator.Estimate
	if err := json.Unmarshal(out, &est); err != nil || est.Visitors != 413 {
		t.Errorf("remote estimate = %+v, %v, want 413 rounded from 412.6", est, err)
	}
}
