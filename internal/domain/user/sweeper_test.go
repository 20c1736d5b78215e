package user

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type countingPurger struct {
	calls int
	n     int64
	err   error
}

func (p *countingPurger) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	p.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return p.n, p.err
}

func TestResetTokenSweeper_InvalidSchedule(t *testing.T) {
	if _, err := NewResetTokenSweeper(&countingPurger{}, "every now and then", zerolog.Nop()); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestResetTokenSweeper_Sweep(t *testing.T) {
	p := &countingPurger{n: 3}
	s, err := NewResetTokenSweeper(p, "@every 15m", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResetTokenSweeper: %v", err)
	}

	s.Sweep()
	if p.calls != 1 {
		t.Errorf("expected one purge, got %d", p.calls)
	}

	p.err = errors.New("db down")
	s.Sweep()
	if p.calls != 2 {
		t.Errorf("a failing purge should still be attempted, got %d calls", p.calls)
	}
}

func TestResetTokenSweeper_StartStop(t *testing.T) {
	s, err := NewResetTokenSweeper(&countingPurger{}, "@every 1h", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResetTokenSweeper: %v", err)
	}
	s.Start()
	s.Stop(context.Background())
}
