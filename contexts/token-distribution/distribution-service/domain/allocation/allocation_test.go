package allocation

import (
	"bytes"
	"errors"
	"testing"
)

func TestCanonicalizeSortsByAddressAndTotals(t *testing.T) {
	allocations, total, err := Canonicalize([]Input{
		{Address: "0x3333333333333333333333333333333333333333", Amount: "25"},
		{Address: "0x1111111111111111111111111111111111111111", Amount: "100"},
		{Address: "0x2222222222222222222222222222222222222222", Amount: "50"},
	})
	if err != nil {
		t.Fatalf("canonicalize failed: %v", err)
	}
	if total.String() != "175" {
		t.Fatalf("expected total 175, got %s", total.String())
	}
	if len(allocations) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(allocations))
	}
	for i := 1; i < len(allocations); i++ {
		if bytes.Compare(allocations[i-1].Address.Bytes(), allocations[i].Address.Bytes()) >= 0 {
			t.Fatalf("allocations not sorted by address: %s before %s",
				allocations[i-1].Address.Hex(), allocations[i].Address.Hex())
		}
	}
}

func TestCanonicalizeCollectsEveryIssue(t *testing.T) {
	_, _, err := Canonicalize([]Input{
		{Address: "not-an-address", Amount: "10"},
		{Address: "0x1111111111111111111111111111111111111111", Amount: "ten"},
		{Address: "0x2222222222222222222222222222222222222222", Amount: "0"},
		{Address: "0x3333333333333333333333333333333333333333", Amount: "-5"},
		{Address: "0x4444444444444444444444444444444444444444", Amount: "100"},
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %d: %+v", len(validationErr.Issues), validationErr.Issues)
	}
	wantIndexes := []int{0, 1, 2, 3}
	for i, issue := range validationErr.Issues {
		if issue.Index != wantIndexes[i] {
			t.Fatalf("issue %d has index %d, want %d", i, issue.Index, wantIndexes[i])
		}
	}
}

func TestCanonicalizeDuplicateIsCaseInsensitive(t *testing.T) {
	_, _, err := Canonicalize([]Input{
		{Address: "0xAAaAaAaAAAaAaAAAaaAAAAaaaAAAAaaAAaaaAaaA", Amount: "10"},
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Amount: "20"},
	})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Issues) != 1 {
		t.Fatalf("expected a single duplicate issue, got %+v", validationErr.Issues)
	}
	if validationErr.Issues[0].Index != 1 {
		t.Fatalf("duplicate should be reported at entry 1, got %d", validationErr.Issues[0].Index)
	}
}

func TestCanonicalizeRejectsEmptyList(t *testing.T) {
	_, _, err := Canonicalize(nil)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
