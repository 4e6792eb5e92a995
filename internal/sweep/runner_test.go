package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"card-broker/internal/history"
	"card-broker/internal/solver"
	"card-broker/internal/tradeopt"
)

type fakeOptimizer struct {
	calls   []float64
	results map[float64]*tradeopt.Report
	errs    map[float64]error
}

func (f *fakeOptimizer) Run(ctx context.Context, req tradeopt.Request) (*tradeopt.Report, error) {
	tol := req.Problem.Tolerance
	f.calls = append(f.calls, tol)
	if err, ok := f.errs[tol]; ok {
		return nil, err
	}
	if report, ok := f.results[tol]; ok {
		return report, nil
	}
	return &tradeopt.Report{Status: solver.StatusOptimal, Tolerance: tol}, nil
}

type fakeRecorder struct {
	runs int
	fail bool
}

func (f *fakeRecorder) RecordRun(ctx context.Context, req tradeopt.Request, report *tradeopt.Report, runErr error) (*history.Run, error) {
	if f.fail {
		return nil, errors.New("store unavailable")
	}
	f.runs++
	return &history.Run{ID: fmt.Sprintf("run-%d", f.runs)}, nil
}

func reportWithTrades(objective float64, n int) *tradeopt.Report {
	report := &tradeopt.Report{Status: solver.StatusOptimal, Objective: objective}
	for i := 0; i < n; i++ {
		report.Trades = append(report.Trades, tradeopt.TradeRecord{Giver: "a", Receiver: "b", Item: tradeopt.Item(fmt.Sprint(i))})
	}
	return report
}

func TestRunner_Run(t *testing.T) {
	opt := &fakeOptimizer{
		results: map[float64]*tradeopt.Report{
			0.1: reportWithTrades(17, 2),
			0.5: reportWithTrades(17, 2),
		},
		errs: map[float64]error{
			0.2: &tradeopt.NotOptimalError{Status: solver.StatusNotSolved},
		},
	}
	rec := &fakeRecorder{}
	runner, err := NewRunner(Config{Tolerances: []float64{0.5, 0, 0.2, 0.1, 0.1}}, opt, rec, nil)
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	result, err := runner.Run(context.Background(), tradeopt.Request{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []float64{0, 0.1, 0.2, 0.5}
	if len(opt.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, opt.calls)
	}
	for i := range want {
		if opt.calls[i] != want[i] {
			t.Errorf("call %d: expected tolerance %v, got %v", i, want[i], opt.calls[i])
		}
	}

	if len(result.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(result.Rows))
	}
	if result.FirstWithTrades != 1 || result.Best != 1 {
		t.Errorf("expected first and best at index 1, got %d %d", result.FirstWithTrades, result.Best)
	}
	failed := result.Rows[2]
	if failed.Status != string(solver.StatusNotSolved) || failed.Err == nil || failed.Error == "" {
		t.Errorf("unexpected failed row %+v", failed)
	}
	if rec.runs != 4 || result.Rows[3].RunID != "run-4" {
		t.Errorf("expected every run to be recorded, got %d runs and %+v", rec.runs, result.Rows[3])
	}
}

func TestRunner_StopAtFirst(t *testing.T) {
	opt := &fakeOptimizer{results: map[float64]*tradeopt.Report{0.1: reportWithTrades(5, 1)}}
	runner, err := NewRunner(Config{Tolerances: []float64{0, 0.1, 0.2}, StopAtFirst: true}, opt, nil, nil)
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	result, err := runner.Run(context.Background(), tradeopt.Request{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Rows) != 2 || len(opt.calls) != 2 {
		t.Fatalf("expected the sweep to stop after 0.1, got %d rows", len(result.Rows))
	}
}

func TestRunner_FatalErrors(t *testing.T) {
	t.Run("Participants", func(t *testing.T) {
		opt := &fakeOptimizer{errs: map[float64]error{0: fmt.Errorf("build: %w", tradeopt.ErrParticipants)}}
		runner, err := NewRunner(Config{Tolerances: []float64{0, 0.1}}, opt, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := runner.Run(context.Background(), tradeopt.Request{}); !errors.Is(err, tradeopt.ErrParticipants) {
			t.Fatalf("expected ErrParticipants, got %v", err)
		}
		if len(opt.calls) != 1 {
			t.Errorf("expected sweep to abort after first call, got %v", opt.calls)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner, err := NewRunner(Config{Tolerances: []float64{0}}, &fakeOptimizer{}, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := runner.Run(ctx, tradeopt.Request{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("RecorderFailureIsNotFatal", func(t *testing.T) {
		runner, err := NewRunner(Config{Tolerances: []float64{0}}, &fakeOptimizer{}, &fakeRecorder{fail: true}, nil)
		if err != nil {
			t.Fatal(err)
		}
		result, err := runner.Run(context.Background(), tradeopt.Request{})
		if err != nil || len(result.Rows) != 1 || result.Rows[0].RunID != "" {
			t.Fatalf("unexpected result %+v %v", result, err)
		}
	})
}

func TestNewRunner_Errors(t *testing.T) {
	if _, err := NewRunner(Config{Tolerances: []float64{0}}, nil, nil, nil); !errors.Is(err, solver.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if _, err := NewRunner(Config{}, &fakeOptimizer{}, nil, nil); err == nil {
		t.Errorf("expected error for empty tolerance list")
	}
}

func TestRunner_WithEngine(t *testing.T) {
	s, err := solver.New(solver.BackendBranchAndBound, solver.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := tradeopt.NewEngine(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(Config{Tolerances: []float64{0, 0.8}}, engine, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := tradeopt.Request{Problem: tradeopt.Problem{
		Items:  []tradeopt.Item{"X", "Y"},
		Prices: tradeopt.PriceTable{"X": 10, "Y": 7},
		Inventory: tradeopt.Inventory{
			{Agent: "A", Item: "X"}: 3,
			{Agent: "B", Item: "Y"}: 3,
		},
	}}
	result, err := runner.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Rows[0].Trades != 0 || result.Rows[1].Trades != 2 {
		t.Fatalf("expected trades only once tolerance reaches 0.8, got %+v", result.Rows)
	}
	if result.Rows[1].Imbalance.String() != "3" {
		t.Errorf("expected imbalance 3, got %s", result.Rows[1].Imbalance)
	}
}
