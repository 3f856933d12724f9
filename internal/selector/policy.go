package selector

import (
	"strings"

	"github.com/bakkerme/posterdigest/internal/core"
)

// PolicyOptions is the raw configuration a Policy is built from.
type PolicyOptions struct {
	// Priority is highest quality first. Empty uses core.DefaultResolutionPriority.
	Priority []core.ResolutionClass
	// Resolutions holds the enabled flag per class. Nil means the defaults (all
	// but LG); classes missing from a non-nil map are enabled.
	Resolutions map[core.ResolutionClass]bool
	// RequiredGenres must all be present (case-insensitive).
	RequiredGenres []string
	// BlockedGenres are genres marked allow: false.
	BlockedGenres []string
	// SkipRule is an optional expr-lang expression; true filters the item.
	SkipRule string
}

// Policy is the immutable selection configuration. Build it once with
// NewPolicy and pass it to New; accessors return copies.
type Policy struct {
	priority []core.ResolutionClass
	enabled  map[core.ResolutionClass]bool
	required []string
	blocked  map[string]string // lower-cased → configured spelling
	skipRule string
}

// DefaultResolutions enables every class except the lowest.
func DefaultResolutions() map[core.ResolutionClass]bool {
	return map[core.ResolutionClass]bool{
		core.ResolutionXXXLG: true,
		core.ResolutionXXLG:  true,
		core.ResolutionXLG:   true,
		core.ResolutionLG:    false,
	}
}

func NewPolicy(options PolicyOptions) Policy {
	priority := make([]core.ResolutionClass, 0, len(core.DefaultResolutionPriority))
	seen := map[core.ResolutionClass]struct{}{}
	source := options.Priority
	if len(source) == 0 {
		source = core.DefaultResolutionPriority
	}
	for _, class := range source {
		if _, dup := seen[class]; dup || class == "" {
			continue
		}
		seen[class] = struct{}{}
		priority = append(priority, class)
	}

	resolutions := options.Resolutions
	if resolutions == nil {
		resolutions = DefaultResolutions()
	}
	enabled := make(map[core.ResolutionClass]bool, len(priority))
	for _, class := range priority {
		allow, ok := resolutions[class]
		enabled[class] = !ok || allow
	}

	required := make([]string, 0, len(options.RequiredGenres))
	requiredSeen := map[string]struct{}{}
	for _, genre := range options.RequiredGenres {
		genre = strings.TrimSpace(genre)
		key := strings.ToLower(genre)
		if genre == "" {
			continue
		}
		if _, dup := requiredSeen[key]; dup {
			continue
		}
		requiredSeen[key] = struct{}{}
		required = append(required, genre)
	}

	blocked := make(map[string]string, len(options.BlockedGenres))
	for _, genre := range options.BlockedGenres {
		genre = strings.TrimSpace(genre)
		if genre == "" {
			continue
		}
		blocked[strings.ToLower(genre)] = genre
	}

	return Policy{
		priority: priority,
		enabled:  enabled,
		required: required,
		blocked:  blocked,
		skipRule: strings.TrimSpace(options.SkipRule),
	}
}

// DefaultPolicy is the permissive policy used when no configuration exists.
func DefaultPolicy() Policy {
	return NewPolicy(PolicyOptions{})
}

func (p Policy) Priority() []core.ResolutionClass {
	return append([]core.ResolutionClass(nil), p.priority...)
}

func (p Policy) Enabled(class core.ResolutionClass) bool {
	return p.enabled[class]
}

func (p Policy) RequiredGenres() []string {
	return append([]string(nil), p.required...)
}

func (p Policy) IsBlocked(genre string) bool {
	_, ok := p.blocked[strings.ToLower(strings.TrimSpace(genre))]
	return ok
}

func (p Policy) SkipRule() string {
	return p.skipRule
}

// EnabledClasses lists the enabled classes in priority order.
func (p Policy) EnabledClasses() []core.ResolutionClass {
	out := make([]core.ResolutionClass, 0, len(p.priority))
	for _, class := range p.priority {
		if p.enabled[class] {
			out = append(out, class)
		}
	}
	return out
}
