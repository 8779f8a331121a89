package totals

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpenEmptyDSNDisabled(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\"): %v", err)
	}
	defer s.Close()

	if _, err := s.ReadTotals(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("ReadTotals err = %v, want ErrDisabled", err)
	}

	// IncrementTotal on a disabled sink must be a silent no-op, never panic.
	s.IncrementTotal(RoomsCreated)
}

func TestOpenInitializesZeroRow(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, err := s.ReadTotals(context.Background())
	if err != nil {
		t.Fatalf("ReadTotals: %v", err)
	}
	want := Totals{}
	if got != want {
		t.Fatalf("initial totals = %+v, want all zero", got)
	}
}

func TestIncrementTotalRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.IncrementTotal(OtmCreated)
	s.IncrementTotal(OtmCreated)
	s.IncrementTotal(RoomsCreated)

	deadline := time.Now().Add(2 * time.Second)
	var got Totals
	for time.Now().Before(deadline) {
		got, err = s.ReadTotals(context.Background())
		if err != nil {
			t.Fatalf("ReadTotals: %v", err)
		}
		if got.OtmCreated == 2 && got.RoomsCreated == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("totals did not converge: %+v", got)
}

func TestValidName(t *testing.T) {
	if !validName(ChatMessagesSent) {
		t.Fatal("validName rejected a recognized counter")
	}
	if validName("not_a_counter") {
		t.Fatal("validName accepted an unrecognized counter")
	}
}
