package rule

import (
	"testing"

	"github.com/vellum-proxy/vellum/internal/domain"
)

func TestMatcher_HostBeatsHostless(t *testing.T) {
	m := NewMatcher([]domain.Rule{
		{Path: "/"},
		{Host: "api.example.com", Path: "/"},
	})
	if got := m.Match("api.example.com", "/x"); got != 1 {
		t.Errorf("got rule %d, want 1", got)
	}
}

func TestMatcher_LongerPathWins(t *testing.T) {
	m := NewMatcher([]domain.Rule{
		{Path: "/app"},
		{Path: "/app/sub"},
	})
	if got := m.Match("", "/app/sub/x"); got != 1 {
		t.Errorf("got rule %d, want 1", got)
	}
}

func TestMatcher_PathMustBeSegmentPrefixed(t *testing.T) {
	m := NewMatcher([]domain.Rule{{Path: "/app"}})
	if got := m.Match("", "/apple"); got != -1 {
		t.Errorf("expected /apple to not match /app, got %d", got)
	}
	if got := m.Match("", "/app/x"); got != 0 {
		t.Errorf("expected /app/x to match /app, got %d", got)
	}
}

func TestMatcher_RootPathMatchesEverything(t *testing.T) {
	m := NewMatcher([]domain.Rule{{Path: "/"}})
	if got := m.Match("", "/anything"); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher([]domain.Rule{{Host: "other.example.com"}})
	if got := m.Match("api.example.com", "/x"); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}

func TestMatcher_ConnectDisqualifiesPathRules(t *testing.T) {
	m := NewMatcher([]domain.Rule{
		{Host: "api.example.com", Path: "/x"},
		{Host: "api.example.com"},
	})
	if got := m.Match("api.example.com", ""); got != 1 {
		t.Errorf("got %d, want 1 (path-bearing rule disqualified for CONNECT)", got)
	}
}
