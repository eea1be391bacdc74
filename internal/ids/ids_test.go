package ids

import (
	"strings"
	"testing"
)

func TestNewGrantIsPrefixedAndSortable(t *testing.T) {
	prev := NewGrant()
	for i := 0; i < 100; i++ {
		next := NewGrant()
		if !strings.HasPrefix(next, "elv_") {
			t.Fatalf("missing prefix: %s", next)
		}
		if next <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestNewAdjustmentPrefix(t *testing.T) {
	if id := NewAdjustment(); !strings.HasPrefix(id, "adj_") || len(id) != len("adj_")+26 {
		t.Fatalf("unexpected adjustment id %q", id)
	}
}
