package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeUsage is an in-memory stand-in for the usage ledger read side.
type fakeUsage struct {
	calls int
	err   error
}

func (f *fakeUsage) CallsOn(_ context.Context, _ time.Time) (int, error) {
	return f.calls, f.err
}

func TestLedgerGuard_Acquire(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		buffer    int
		calls     int
		n         int
		exhausted bool
	}{
		{name: "budget available", limit: 100, buffer: 10, calls: 50, n: 1},
		{name: "buffer eats remainder", limit: 100, buffer: 10, calls: 95, n: 1, exhausted: true},
		{name: "exactly at budget edge", limit: 100, buffer: 10, calls: 89, n: 1},
		{name: "over budget", limit: 100, buffer: 10, calls: 90, n: 1, exhausted: true},
		{name: "batch larger than remainder", limit: 100, buffer: 0, calls: 95, n: 10, exhausted: true},
		{name: "no limit configured", limit: 0, buffer: 10, calls: 100000, n: 1},
		{name: "zero request always passes", limit: 100, buffer: 10, calls: 95, n: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewLedgerGuard(&fakeUsage{calls: tt.calls}, tt.limit, tt.buffer)
			err := g.Acquire(context.Background(), tt.n)
			if tt.exhausted {
				if !errors.Is(err, ErrExhausted) {
					t.Fatalf("Acquire() = %v, want ErrExhausted", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire() = %v, want nil", err)
			}
		})
	}
}

func TestLedgerGuard_CallsLeft(t *testing.T) {
	g := NewLedgerGuard(&fakeUsage{calls: 95}, 100, 10)
	left, err := g.CallsLeft(context.Background())
	if err != nil {
		t.Fatalf("CallsLeft() error = %v", err)
	}
	if left == nil || *left != 0 {
		t.Errorf("CallsLeft() = %v, want 0 (never negative)", left)
	}

	g = NewLedgerGuard(&fakeUsage{calls: 95}, 0, 10)
	left, err = g.CallsLeft(context.Background())
	if err != nil {
		t.Fatalf("CallsLeft() error = %v", err)
	}
	if left != nil {
		t.Errorf("CallsLeft() = %d, want nil for unlimited", *left)
	}
}

func TestLedgerGuard_LedgerErrorPropagates(t *testing.T) {
	ledgerErr := errors.New("connection refused")
	g := NewLedgerGuard(&fakeUsage{err: ledgerErr}, 100, 10)

	err := g.Acquire(context.Background(), 1)
	if !errors.Is(err, ledgerErr) {
		t.Fatalf("Acquire() = %v, want wrapped ledger error", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("ledger failure must not masquerade as quota exhaustion")
	}
}

func TestLedgerGuard_Snapshot(t *testing.T) {
	g := NewLedgerGuard(&fakeUsage{calls: 30}, 100, 10)
	snap, err := g.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Policy != "guard" {
		t.Errorf("Policy = %q, want guard", snap.Policy)
	}
	if snap.DayLimit != 100 || snap.Buffer != 10 {
		t.Errorf("limits = (%d, %d), want (100, 10)", snap.DayLimit, snap.Buffer)
	}
	if snap.DayRemaining == nil || *snap.DayRemaining != 60 {
		t.Errorf("DayRemaining = %v, want 60", snap.DayRemaining)
	}
}
