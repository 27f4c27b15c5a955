package domain

import (
	"context"
	"errors"
	"testing"
)

type graphLookup map[string][]string

func (g graphLookup) BlockedBy(_ context.Context, taskID string) ([]string, error) {
	return g[taskID], nil
}

func TestValidateBlockedBySelf(t *testing.T) {
	err := ValidateBlockedBy(context.Background(), graphLookup{}, "x", []string{"a", "x"})
	if !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("want ErrSelfDependency, got %v", err)
	}
}

func TestValidateBlockedByCycle(t *testing.T) {
	// y is blocked by x; setting x.blockedBy=[y] closes the cycle.
	g := graphLookup{"y": {"x"}}
	err := ValidateBlockedBy(context.Background(), g, "x", []string{"y"})
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("want ErrCircularDependency, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatal("cycle rejection must classify as validation error")
	}
}

func TestValidateBlockedByDeepCycle(t *testing.T) {
	g := graphLookup{
		"b": {"c"},
		"c": {"d"},
		"d": {"x"},
	}
	if err := ValidateBlockedBy(context.Background(), g, "x", []string{"b"}); !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("want ErrCircularDependency, got %v", err)
	}
}

func TestValidateBlockedByAcceptsAcyclic(t *testing.T) {
	g := graphLookup{
		"b": {"c"},
		"c": {"d"},
	}
	if err := ValidateBlockedBy(context.Background(), g, "x", []string{"b", "c"}); err != nil {
		t.Fatalf("acyclic edge set rejected: %v", err)
	}
	if err := ValidateBlockedBy(context.Background(), g, "x", nil); err != nil {
		t.Fatalf("empty edge set rejected: %v", err)
	}
}

// Shared ancestors must be visited once, not loop the walk.
func TestValidateBlockedBySharedAncestor(t *testing.T) {
	g := graphLookup{
		"b": {"d"},
		"c": {"d"},
		"d": {},
	}
	if err := ValidateBlockedBy(context.Background(), g, "x", []string{"b", "c"}); err != nil {
		t.Fatalf("diamond graph rejected: %v", err)
	}
}

type failingLookup struct{ err error }

func (f failingLookup) BlockedBy(context.Context, string) ([]string, error) {
	return nil, f.err
}

func TestValidateBlockedByLookupFailure(t *testing.T) {
	boom := errors.New("storage down")
	err := ValidateBlockedBy(context.Background(), failingLookup{err: boom}, "x", []string{"a"})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped lookup error, got %v", err)
	}
}
