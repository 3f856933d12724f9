// Package selector decides, per item, which resolution to take or why the
// item is filtered.
package selector

import (
	"context"
	"strings"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/sources/tmdb"
)

type Kind string

const (
	Selected             Kind = "selected"
	FilteredRequired     Kind = "filtered_required"
	FilteredBlocked      Kind = "filtered_blocked"
	FilteredRule         Kind = "filtered_rule"
	NoEligibleResolution Kind = "no_eligible_resolution"
)

// Outcome is the selection result for one item. Artifact is set only for
// Selected; Missing only for FilteredRequired; Matched only for FilteredBlocked.
type Outcome struct {
	Kind     Kind
	Artifact *core.Artifact
	Missing  []string
	Matched  []string
	// Genres is what the lookup returned; nil when genre policy was skipped.
	Genres []string
}

type Selector struct {
	policy Policy
	lookup tmdb.Lookup
	rule   *skipRule
}

// New builds a selector. lookup may be nil, in which case genre policy is
// always skipped. An invalid skip rule is a construction error.
func New(policy Policy, lookup tmdb.Lookup) (*Selector, error) {
	rule, err := compileSkipRule(policy.SkipRule())
	if err != nil {
		return nil, err
	}
	return &Selector{policy: policy, lookup: lookup, rule: rule}, nil
}

func (s *Selector) Policy() Policy {
	return s.policy
}

// Select applies the genre policy (when metadata is available), the optional
// skip rule and then the resolution priority.
func (s *Selector) Select(ctx context.Context, item core.Item) Outcome {
	logger := core.LoggerFromContext(ctx).With("id", item.ID)

	genres := s.genres(ctx, item)
	if len(genres) > 0 {
		if missing := missingRequired(genres, s.policy.RequiredGenres()); len(missing) > 0 {
			logger.Info("item filtered: missing required genres", "missing", missing, "genres", genres)
			return Outcome{Kind: FilteredRequired, Missing: missing, Genres: genres}
		}
		if matched := s.blockedGenres(genres); len(matched) > 0 {
			logger.Info("item filtered: blocked genres", "matched", matched)
			return Outcome{Kind: FilteredBlocked, Matched: matched, Genres: genres}
		}
	}

	if s.rule != nil {
		skip, err := s.rule.Match(item, genres)
		switch {
		case err != nil:
			logger.Warn("skip rule failed; ignoring rule for item", "rule", s.rule.source, "error", err)
		case skip:
			logger.Info("item filtered by skip rule", "rule", s.rule.source)
			return Outcome{Kind: FilteredRule, Genres: genres}
		}
	}

	for _, class := range s.policy.priority {
		variant, exposed := item.Variants[class]
		if !exposed {
			continue
		}
		if !s.policy.Enabled(class) {
			logger.Debug("resolution available but disabled", "class", class)
			continue
		}
		artifact := &core.Artifact{
			ItemID:       item.ID,
			Title:        item.Title,
			Year:         item.Year,
			PosterNumber: item.PosterNumber,
			BaseName:     item.BaseName,
			Class:        class,
			Dimensions:   variant.Dimensions,
			URL:          variant.URL,
			Position:     item.Position,
		}
		logger.Info("resolution selected", "class", class, "dimensions", variant.Dimensions)
		return Outcome{Kind: Selected, Artifact: artifact, Genres: genres}
	}
	logger.Info("no enabled resolution available", "exposed", len(item.Variants))
	return Outcome{Kind: NoEligibleResolution, Genres: genres}
}

// genres calls the lookup once. Failures and empty results both mean "no
// metadata" and skip the genre policy.
func (s *Selector) genres(ctx context.Context, item core.Item) []string {
	if s.lookup == nil {
		return nil
	}
	genres, err := s.lookup.Genres(ctx, item)
	if err != nil {
		core.LoggerFromContext(ctx).Warn("genre lookup failed; genre policy skipped", "id", item.ID, "error", err)
		return nil
	}
	return genres
}

func missingRequired(genres, required []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(genres))
	for _, genre := range genres {
		have[strings.ToLower(strings.TrimSpace(genre))] = struct{}{}
	}
	var missing []string
	for _, want := range required {
		if _, ok := have[strings.ToLower(want)]; !ok {
			missing = append(missing, want)
		}
	}
	return missing
}

func (s *Selector) blockedGenres(genres []string) []string {
	var matched []string
	for _, genre := range genres {
		if s.policy.IsBlocked(genre) {
			matched = append(matched, genre)
		}
	}
	return matched
}
