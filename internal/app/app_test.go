package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"card-broker/internal/config"
	"card-broker/internal/history"
	"card-broker/internal/solver"
	"card-broker/internal/store"
	"card-broker/internal/sweep"
	"card-broker/internal/tradeopt"
)

const (
	pricesCSV = "id,name,set_id,price_type,price\n" +
		"sv1-1,Sprigatito,sv1,normal_market,10\n" +
		"sv1-2,Fuecoco,sv1,normal_market,10\n" +
		"sv1-3,Quaxly,sv1,normal_market,7\n"
	aliceCSV = "Id;Name;Set;Normal Quantity;Holo Quantity;Reverse Holo Quantity\n" +
		"sv1-1;Sprigatito;Scarlet & Violet;2;0;0\n" +
		"sv1-3;Quaxly;Scarlet & Violet;1;0;0\n"
	bobCSV = "Id;Name;Set;Normal Quantity;Holo Quantity;Reverse Holo Quantity\n" +
		"sv1-2;Fuecoco;Scarlet & Violet;3;0;0\n"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Optimizer: config.OptimizerConfig{
			Solver:         solver.BackendBranchAndBound,
			MaxNodes:       10000,
			IntegralityTol: 1e-6,
			Timeout:        time.Minute,
		},
		Input: config.InputConfig{
			InventoryDelimiter: ";",
			PriceDelimiter:     ",",
		},
		Database: config.DatabaseConfig{InMemory: true},
		Server:   config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	st, err := store.NewSQLite(cfg.Database)
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	a, err := New(context.Background(), cfg, nil, st)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return a
}

func writeInputs(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"prices.csv": pricesCSV,
		"alice.csv":  aliceCSV,
		"bob.csv":    bobCSV,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return Inputs{
		Prices: filepath.Join(dir, "prices.csv"),
		Inventories: map[tradeopt.Agent]string{
			"alice": filepath.Join(dir, "alice.csv"),
			"bob":   filepath.Join(dir, "bob.csv"),
		},
	}
}

func TestApp_Suggest(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	ds, err := a.Load(ctx, writeInputs(t))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(ds.Request.Problem.Items) != 3 {
		t.Fatalf("expected 3 tradable items, got %v", ds.Request.Problem.Items)
	}
	if len(ds.Holdings) != 2 {
		t.Fatalf("expected holdings for both agents, got %+v", ds.Holdings)
	}

	report, run, err := a.Suggest(ctx, ds, 0)
	if err != nil {
		t.Fatalf("Suggest returned error: %v", err)
	}
	if report.Objective != 20 || len(report.Trades) != 2 {
		t.Fatalf("expected the 10-for-10 swap, got %f %+v", report.Objective, report.Trades)
	}
	if report.Trades[0].Name != "Sprigatito" || report.Trades[0].Set != "sv1" {
		t.Errorf("expected price table metadata, got %+v", report.Trades[0])
	}
	if run == nil {
		t.Fatalf("expected the run to be recorded")
	}

	stored, trades, err := a.RunTrades(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunTrades returned error: %v", err)
	}
	if stored.TradeCount != 2 || len(trades) != 2 {
		t.Errorf("unexpected stored run %+v with %d trades", stored, len(trades))
	}

	runs, err := a.Runs(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run in history, got %v %v", runs, err)
	}
}

func TestApp_Sweep(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	inputs := writeInputs(t)
	ds, err := a.Load(ctx, inputs)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	result, err := a.Sweep(ctx, ds, sweep.Config{Tolerances: []float64{0.2, 0}})
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0].Tolerance != 0 {
		t.Fatalf("unexpected rows %+v", result.Rows)
	}

	runs, err := a.Runs(ctx, 10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected every sweep step to be recorded, got %d %v", len(runs), err)
	}
}

func TestApp_LoadErrors(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()
	inputs := writeInputs(t)

	t.Run("MissingPrices", func(t *testing.T) {
		in := inputs
		in.Prices = ""
		if _, err := a.Load(ctx, in); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("SingleInventory", func(t *testing.T) {
		in := Inputs{Prices: inputs.Prices, Inventories: map[tradeopt.Agent]string{"alice": inputs.Inventories["alice"]}}
		if _, err := a.Load(ctx, in); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("UnknownSolver", func(t *testing.T) {
		cfg := testConfig()
		cfg.Optimizer.Solver = "cplex"
		b := newTestApp(t, cfg)
		ds, err := b.Load(ctx, inputs)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := b.Suggest(ctx, ds, 0); !errors.Is(err, solver.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}

func TestRender(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx := context.Background()
	ds, err := a.Load(ctx, writeInputs(t))
	if err != nil {
		t.Fatal(err)
	}
	report, run, err := a.Suggest(ctx, ds, 0)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderReport(&buf, FormatTable, report, run, ds.Holdings); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{run.ID, "Sprigatito", "Fuecoco", "10.00"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected table to contain %q:\n%s", want, out)
			}
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderReport(&buf, FormatJSON, report, run, nil); err != nil {
			t.Fatal(err)
		}
		var view reportView
		if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if len(view.Trades) != 2 || view.Trades[0].Price != "10.00" || view.Imbalance != "0.00" {
			t.Errorf("unexpected json view %+v", view)
		}
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderReport(&buf, FormatYAML, report, run, nil); err != nil {
			t.Fatal(err)
		}
		var view reportView
		if err := yaml.Unmarshal(buf.Bytes(), &view); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		if view.RunID != run.ID || len(view.Flows) != 2 {
			t.Errorf("unexpected yaml view %+v", view)
		}
	})

	t.Run("Runs", func(t *testing.T) {
		runs, err := a.Runs(ctx, 5)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := RenderRuns(&buf, FormatTable, runs); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "alice,bob") {
			t.Errorf("expected agents column, got %s", buf.String())
		}
	})

	t.Run("EmptyTrades", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderRunTrades(&buf, FormatTable, &history.Run{ID: "x", Status: "infeasible"}, nil); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "没有可行的交易") {
			t.Errorf("expected empty marker, got %s", buf.String())
		}
	})
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, " yaml ": FormatYAML}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Errorf("expected error for xml")
	}
}

func TestServe(t *testing.T) {
	a := newTestApp(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/runs", ln.Addr()))
	if err != nil {
		cancel()
		t.Fatalf("GET /runs failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop after cancellation")
	}
}
