package chanmap

import (
	"testing"

	"github.com/drgolem/audiocore/pkg/audioblock"
)

func TestCheckChannelReorderIdentityWhenOrdersMatch(t *testing.T) {
	mask := audioblock.ChanFrontLeft | audioblock.ChanFrontRight
	order := []uint32{audioblock.ChanFrontLeft, audioblock.ChanFrontRight}
	table, needed := CheckChannelReorder(order, order, mask, 2)
	if needed {
		t.Fatalf("reorderNeeded = true, want false for identical orders")
	}
	for i, v := range table {
		if v != i {
			t.Fatalf("table[%d] = %d, want %d (identity)", i, v, i)
		}
	}
}

func TestCheckChannelReorderDetectsSwap(t *testing.T) {
	mask := audioblock.ChanFrontLeft | audioblock.ChanFrontRight
	// orderIn presents R before L; orderOut wants the canonical L-before-R.
	orderIn := []uint32{audioblock.ChanFrontRight, audioblock.ChanFrontLeft}
	orderOut := []uint32{audioblock.ChanFrontLeft, audioblock.ChanFrontRight}
	table, needed := CheckChannelReorder(orderIn, orderOut, mask, 2)
	if !needed {
		t.Fatalf("reorderNeeded = false, want true")
	}
	if table[0] == table[1] {
		t.Fatalf("table is degenerate: %v", table)
	}
}

// invert returns the permutation t such that applying it after table is the
// identity: t[table[i]] = i.
func invert(table []int) []int {
	inv := make([]int, len(table))
	for src, dst := range table {
		inv[dst] = src
	}
	return inv
}

func TestChannelReorderRoundTripIsIdentity(t *testing.T) {
	channels := 3
	bitsPerSample := 16
	table := []int{2, 0, 1} // a 3-cycle, not just a pairwise swap

	frame := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06} // 3 channels * 2 bytes
	original := append([]byte(nil), frame...)

	if ok := ChannelReorder(frame, channels, table, bitsPerSample); !ok {
		t.Fatalf("ChannelReorder returned false")
	}
	if string(frame) == string(original) {
		t.Fatalf("reorder with a non-identity table left the buffer unchanged")
	}

	inv := invert(table)
	if ok := ChannelReorder(frame, channels, inv, bitsPerSample); !ok {
		t.Fatalf("inverse ChannelReorder returned false")
	}

	for i := range frame {
		if frame[i] != original[i] {
			t.Fatalf("round trip mismatch at byte %d: got %#x, want %#x", i, frame[i], original[i])
		}
	}
}

func TestChannelReorderMultiFrame(t *testing.T) {
	channels := 2
	bitsPerSample := 16
	table := []int{1, 0} // swap L/R

	// Two frames back to back.
	buf := []byte{0xAA, 0xAA, 0xBB, 0xBB, 0xCC, 0xCC, 0xDD, 0xDD}
	want := []byte{0xBB, 0xBB, 0xAA, 0xAA, 0xDD, 0xDD, 0xCC, 0xCC}

	if ok := ChannelReorder(buf, channels, table, bitsPerSample); !ok {
		t.Fatalf("ChannelReorder returned false")
	}
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}
}

func TestCheckChannelExtractionDualMono(t *testing.T) {
	layout, channels := CheckChannelExtraction(audioblock.ChanDualMono, 2)
	if channels != 1 {
		t.Fatalf("channels = %d, want 1", channels)
	}
	if layout != audioblock.ChanFrontCenter {
		t.Fatalf("layout = %#x, want front-center", layout)
	}
}

func TestCheckChannelExtractionPassthrough(t *testing.T) {
	mask := audioblock.ChanFrontLeft | audioblock.ChanFrontRight
	layout, channels := CheckChannelExtraction(mask, 2)
	if layout != mask || channels != 2 {
		t.Fatalf("got (%#x, %d), want unchanged (%#x, 2)", layout, channels, mask)
	}
}
