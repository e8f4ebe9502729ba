package filterorder

import (
	"math"
	"reflect"
	"testing"
)

func TestRankKnownAndUnknownNames(t *testing.T) {
	if got := Rank("equalizer"); got != 0 {
		t.Fatalf("Rank(equalizer) = %d, want 0", got)
	}
	if got := Rank("some_custom_filter"); got != math.MaxInt {
		t.Fatalf("Rank(unknown) = %d, want MaxInt", got)
	}
}

func TestInsertPlacesBeforeFirstGreaterRank(t *testing.T) {
	chain := []string{"compressor", "headphone"}
	got := Insert(chain, "equalizer")
	want := []string{"equalizer", "compressor", "headphone"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Insert = %v, want %v", got, want)
	}
}

func TestInsertUnknownGoesLastKeepingOrder(t *testing.T) {
	chain := []string{"equalizer", "custom_a"}
	got := Insert(chain, "custom_b")
	want := []string{"equalizer", "custom_a", "custom_b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Insert = %v, want %v", got, want)
	}
}

func TestInsertEqualRankKeepsExistingAhead(t *testing.T) {
	chain := []string{"custom_a"}
	got := Insert(chain, "custom_b") // both rank MaxInt
	want := []string{"custom_a", "custom_b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Insert = %v, want %v", got, want)
	}
}

func TestInsertDoesNotMutateInput(t *testing.T) {
	chain := []string{"compressor", "headphone"}
	_ = Insert(chain, "equalizer")
	if !reflect.DeepEqual(chain, []string{"compressor", "headphone"}) {
		t.Fatalf("Insert mutated its input: %v", chain)
	}
}

func TestParseDropsEmptyEntries(t *testing.T) {
	got := Parse("equalizer::compressor: ")
	want := []string{"equalizer", "compressor"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %v, want %v", got, want)
	}
	if Parse("") != nil {
		t.Fatalf("Parse(\"\") should return nil")
	}
}

func TestJoinRoundTrips(t *testing.T) {
	chain := []string{"equalizer", "compressor"}
	if got := Join(chain); got != "equalizer:compressor" {
		t.Fatalf("Join = %q", got)
	}
}
