package reqid

import "testing"

func TestNextStartsAtA(t *testing.T) {
	m := NewMinter()
	if got := m.Next(); got != "a" {
		t.Errorf("got %q, want a", got)
	}
}

func TestNextNeverRepeats(t *testing.T) {
	m := NewMinter()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := m.Next()
		if seen[id] {
			t.Fatalf("duplicate id %q at iteration %d", id, i)
		}
		seen[id] = true
	}
}

func TestNextCarriesPastZ(t *testing.T) {
	i := id{'z'}
	i.next()
	if string(i) != "aa" {
		t.Errorf("got %q, want aa", string(i))
	}
}

func TestNextCarriesAllDigits(t *testing.T) {
	i := id{'z', 'z'}
	i.next()
	if string(i) != "aaa" {
		t.Errorf("got %q, want aaa", string(i))
	}
}
