package balancer

import "testing"

func TestRoundRobinSelector_Cycles(t *testing.T) {
	targets := []string{"http://b1", "http://b2"}
	sel := NewRoundRobinSelector()

	want := []string{"http://b1", "http://b2", "http://b1", "http://b2"}
	for i, w := range want {
		got, err := sel.Select(targets, "")
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if got != w {
			t.Errorf("select %d = %s, want %s", i, got, w)
		}
	}
}

func TestRoundRobinSelector_NoTargets(t *testing.T) {
	sel := NewRoundRobinSelector()
	if _, err := sel.Select(nil, ""); err == nil {
		t.Fatal("expected error for empty target list")
	}
}

func TestIPHashSelector_ConsistentPerIP(t *testing.T) {
	targets := []string{"http://b1", "http://b2", "http://b3"}
	sel := NewIPHashSelector()

	first, err := sel.Select(targets, "10.0.0.5")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, err := sel.Select(targets, "10.0.0.5")
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Errorf("iteration %d: got %s, want consistent %s", i, got, first)
		}
	}
}

func TestIPHashSelector_EmptyIPPicksFirst(t *testing.T) {
	targets := []string{"http://b1", "http://b2"}
	sel := NewIPHashSelector()
	got, err := sel.Select(targets, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != targets[0] {
		t.Errorf("got %s, want %s", got, targets[0])
	}
}
