package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/tmdb/mock"
	"github.com/google/go-cmp/cmp"
)

func variants(classes ...core.ResolutionClass) map[core.ResolutionClass]core.Variant {
	out := map[core.ResolutionClass]core.Variant{}
	for _, class := range classes {
		out[class] = core.Variant{Class: class, URL: "http://posters.test/" + string(class) + ".jpg", Dimensions: "100x150"}
	}
	return out
}

func mustSelector(t *testing.T, policy Policy, lookup *mock.Lookup) *Selector {
	t.Helper()
	var s *Selector
	var err error
	if lookup == nil {
		s, err = New(policy, nil)
	} else {
		s, err = New(policy, lookup)
	}
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestResolutionPriorityRespectsDisabledClasses(t *testing.T) {
	// Priority [C, B, A] with C disabled must pick B.
	policy := NewPolicy(PolicyOptions{
		Priority: []core.ResolutionClass{core.ResolutionXXXLG, core.ResolutionXXLG, core.ResolutionXLG},
		Resolutions: map[core.ResolutionClass]bool{
			core.ResolutionXXXLG: false,
			core.ResolutionXXLG:  true,
			core.ResolutionXLG:   true,
		},
	})
	item := core.Item{ID: "i1", Variants: variants(core.ResolutionXXXLG, core.ResolutionXXLG, core.ResolutionXLG)}

	out := mustSelector(t, policy, nil).Select(context.Background(), item)
	if out.Kind != Selected {
		t.Fatalf("kind = %q, want selected", out.Kind)
	}
	if out.Artifact.Class != core.ResolutionXXLG {
		t.Fatalf("class = %q, want XXLG", out.Artifact.Class)
	}
}

func TestResolutionSelection(t *testing.T) {
	cases := []struct {
		name      string
		policy    Policy
		exposed   []core.ResolutionClass
		wantKind  Kind
		wantClass core.ResolutionClass
	}{
		{
			name:      "highest exposed wins",
			policy:    DefaultPolicy(),
			exposed:   []core.ResolutionClass{core.ResolutionXLG, core.ResolutionXXLG},
			wantKind:  Selected,
			wantClass: core.ResolutionXXLG,
		},
		{
			name:     "only LG exposed and LG disabled by default",
			policy:   DefaultPolicy(),
			exposed:  []core.ResolutionClass{core.ResolutionLG},
			wantKind: NoEligibleResolution,
		},
		{
			name:     "nothing exposed",
			policy:   DefaultPolicy(),
			wantKind: NoEligibleResolution,
		},
		{
			name: "class missing from config is enabled",
			policy: NewPolicy(PolicyOptions{Resolutions: map[core.ResolutionClass]bool{
				core.ResolutionXXXLG: false,
			}}),
			exposed:   []core.ResolutionClass{core.ResolutionXXXLG, core.ResolutionLG},
			wantKind:  Selected,
			wantClass: core.ResolutionLG,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := core.Item{ID: "x", Variants: variants(tc.exposed...)}
			out := mustSelector(t, tc.policy, nil).Select(context.Background(), item)
			if out.Kind != tc.wantKind {
				t.Fatalf("kind = %q, want %q", out.Kind, tc.wantKind)
			}
			if tc.wantKind == Selected && out.Artifact.Class != tc.wantClass {
				t.Fatalf("class = %q, want %q", out.Artifact.Class, tc.wantClass)
			}
			if tc.wantKind != Selected && out.Artifact != nil {
				t.Fatalf("unexpected artifact %+v", out.Artifact)
			}
		})
	}
}

func TestRequiredGenresUseCaseInsensitiveAnd(t *testing.T) {
	lookup := &mock.Lookup{GenresByID: map[string][]string{
		"both":    {"Animation", "Comedy", "Family"},
		"partial": {"Animation", "Drama"},
	}}
	policy := NewPolicy(PolicyOptions{RequiredGenres: []string{"animation", "comedy"}})
	s := mustSelector(t, policy, lookup)

	if out := s.Select(context.Background(), core.Item{ID: "both", Variants: variants(core.ResolutionXLG)}); out.Kind != Selected {
		t.Fatalf("expected selected, got %q", out.Kind)
	}
	out := s.Select(context.Background(), core.Item{ID: "partial", Variants: variants(core.ResolutionXLG)})
	if out.Kind != FilteredRequired {
		t.Fatalf("expected filtered_required, got %q", out.Kind)
	}
	if diff := cmp.Diff([]string{"comedy"}, out.Missing); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
}

func TestRequiredCheckRunsBeforeBlocklist(t *testing.T) {
	lookup := &mock.Lookup{GenresByID: map[string][]string{"x": {"Horror"}}}
	policy := NewPolicy(PolicyOptions{RequiredGenres: []string{"Comedy"}, BlockedGenres: []string{"Horror"}})
	out := mustSelector(t, policy, lookup).Select(context.Background(), core.Item{ID: "x", Variants: variants(core.ResolutionXLG)})
	if out.Kind != FilteredRequired {
		t.Fatalf("expected filtered_required, got %q", out.Kind)
	}
}

func TestBlockedGenres(t *testing.T) {
	lookup := &mock.Lookup{GenresByID: map[string][]string{"x": {"Drama", "horror", "War"}}}
	policy := NewPolicy(PolicyOptions{BlockedGenres: []string{"Horror", "War"}})
	out := mustSelector(t, policy, lookup).Select(context.Background(), core.Item{ID: "x", Variants: variants(core.ResolutionXLG)})
	if out.Kind != FilteredBlocked {
		t.Fatalf("expected filtered_blocked, got %q", out.Kind)
	}
	if diff := cmp.Diff([]string{"horror", "War"}, out.Matched); diff != "" {
		t.Fatalf("matched (-want +got):\n%s", diff)
	}
	if out.Artifact != nil {
		t.Fatalf("filtered items carry no artifact")
	}
}

func TestGenrePolicyFailsOpen(t *testing.T) {
	lookup := &mock.Lookup{
		ErrByID:    map[string]error{"err": errors.New("timeout")},
		GenresByID: map[string][]string{"empty": {}},
	}
	policy := NewPolicy(PolicyOptions{RequiredGenres: []string{"Comedy"}, BlockedGenres: []string{"Horror"}})
	s := mustSelector(t, policy, lookup)

	for _, id := range []string{"err", "empty"} {
		out := s.Select(context.Background(), core.Item{ID: id, Variants: variants(core.ResolutionXXLG)})
		if out.Kind != Selected {
			t.Fatalf("%s: expected selected when genres unavailable, got %q", id, out.Kind)
		}
	}
	if lookup.Calls["err"] != 1 || lookup.Calls["empty"] != 1 {
		t.Fatalf("expected exactly one lookup per item, got %v", lookup.Calls)
	}
}

func TestSkipRule(t *testing.T) {
	lookup := &mock.Lookup{GenresByID: map[string][]string{"old": {"Drama"}}}
	policy := NewPolicy(PolicyOptions{SkipRule: `year < 2000 || "Documentary" in genres`})
	s := mustSelector(t, policy, lookup)

	out := s.Select(context.Background(), core.Item{ID: "old", Year: "1999", Variants: variants(core.ResolutionXLG)})
	if out.Kind != FilteredRule {
		t.Fatalf("expected filtered_rule, got %q", out.Kind)
	}
	out = s.Select(context.Background(), core.Item{ID: "new", Year: "2025", Variants: variants(core.ResolutionXLG)})
	if out.Kind != Selected {
		t.Fatalf("expected selected, got %q", out.Kind)
	}
}

func TestSkipRuleCompileError(t *testing.T) {
	if _, err := New(NewPolicy(PolicyOptions{SkipRule: "year <"}), nil); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestPolicyAccessorsReturnCopies(t *testing.T) {
	policy := NewPolicy(PolicyOptions{RequiredGenres: []string{"Comedy", "comedy", " "}})
	required := policy.RequiredGenres()
	if diff := cmp.Diff([]string{"Comedy"}, required); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}
	required[0] = "Horror"
	if policy.RequiredGenres()[0] != "Comedy" {
		t.Fatalf("policy must not be mutated through accessors")
	}
	priority := policy.Priority()
	priority[0] = core.ResolutionLG
	if policy.Priority()[0] != core.ResolutionXXXLG {
		t.Fatalf("priority must not be mutated through accessors")
	}
}

func TestEnabledClassesFollowPriority(t *testing.T) {
	sel, err := New(NewPolicy(PolicyOptions{
		Priority:    []core.ResolutionClass{core.ResolutionXLG, core.ResolutionXXXLG, core.ResolutionLG},
		Resolutions: map[core.ResolutionClass]bool{core.ResolutionLG: false},
	}), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := []core.ResolutionClass{core.ResolutionXLG, core.ResolutionXXXLG}
	if diff := cmp.Diff(want, sel.Policy().EnabledClasses()); diff != "" {
		t.Fatalf("enabled classes (-want +got):\n%s", diff)
	}
}
