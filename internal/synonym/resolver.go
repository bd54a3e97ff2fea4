// Package synonym maps raw exam names captured from reports to the canonical
// exam vocabulary.
package synonym

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/model"
)

// canonicalRank puts a standard name above every synonym source, so
// resolving a canonical name always returns it unchanged.
const canonicalRank = 10

// MatchKind tells how a name was resolved.
type MatchKind string

const (
	MatchCanonical  MatchKind = "canonical"
	MatchExact      MatchKind = "exact"
	MatchNormalized MatchKind = "normalized"
	MatchNone       MatchKind = "none"
)

// Resolution is the outcome of resolving one raw name.
type Resolution struct {
	Name         string
	Standardized bool
	Kind         MatchKind
	Source       model.SynonymSource
}

type entry struct {
	name    string
	rank    int
	lab     string
	source  model.SynonymSource
	updated time.Time
	id      string
}

// Resolver is an immutable lookup built once per batch. Safe for concurrent use.
type Resolver struct {
	exact      map[string][]entry
	normalized map[string][]entry
}

// NewResolver indexes the canonical names and the active synonyms.
func NewResolver(canonical []string, synonyms []model.ExamSynonym) *Resolver {
	r := &Resolver{
		exact:      make(map[string][]entry),
		normalized: make(map[string][]entry),
	}

	seen := make(map[string]bool)
	add := func(raw string, e entry) {
		if strings.TrimSpace(raw) == "" || strings.TrimSpace(e.name) == "" {
			return
		}
		r.exact[exactKey(raw)] = append(r.exact[exactKey(raw)], e)
		if nk := Normalize(raw); nk != "" {
			r.normalized[nk] = append(r.normalized[nk], e)
		}
	}

	for _, name := range canonical {
		name = CleanSpaces(name)
		if seen[exactKey(name)] {
			continue
		}
		seen[exactKey(name)] = true
		add(name, entry{name: name, rank: canonicalRank})
	}

	for _, s := range synonyms {
		if !s.IsActive || !s.Source.Valid() {
			continue
		}
		std := CleanSpaces(s.StandardName)
		// The target of a synonym is canonical too.
		if !seen[exactKey(std)] {
			seen[exactKey(std)] = true
			add(std, entry{name: std, rank: canonicalRank})
		}
		add(s.Synonym, entry{
			name:    std,
			rank:    s.Source.Rank(),
			lab:     strings.TrimSpace(s.Laboratory),
			source:  s.Source,
			updated: s.UpdatedAt,
			id:      s.ID,
		})
	}

	for key, entries := range r.exact {
		sortEntries(entries)
		warnConflicts(key, entries)
	}
	for _, entries := range r.normalized {
		sortEntries(entries)
	}
	return r
}

// sortEntries orders by rank, lab scope, recency, then ID.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if (a.lab != "") != (b.lab != "") {
			return a.lab != ""
		}
		if !a.updated.Equal(b.updated) {
			return a.updated.After(b.updated)
		}
		return a.id < b.id
	})
}

func warnConflicts(key string, entries []entry) {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.rank == cur.rank && prev.lab == cur.lab && prev.rank != canonicalRank &&
			!strings.EqualFold(prev.name, cur.name) {
			zap.L().Warn("synonym conflict",
				zap.String("synonym", key),
				zap.String("source", string(cur.source)),
				zap.String("laboratory", cur.lab),
				zap.String("kept", prev.name),
				zap.String("shadowed", cur.name),
			)
		}
	}
}

// Resolve returns the canonical name for raw. Lab-scoped synonyms apply only
// when laboratory matches. Unmatched names come back cleaned but otherwise
// as captured, with Standardized=false.
func (r *Resolver) Resolve(raw, laboratory string) Resolution {
	if e, ok := pick(r.exact[exactKey(raw)], laboratory); ok {
		return resolution(e, MatchExact)
	}
	if nk := Normalize(raw); nk != "" {
		if e, ok := pick(r.normalized[nk], laboratory); ok {
			return resolution(e, MatchNormalized)
		}
	}
	return Resolution{Name: CleanSpaces(raw), Kind: MatchNone}
}

// IsCanonical reports whether name is a known standard name.
func (r *Resolver) IsCanonical(name string) bool {
	for _, e := range r.exact[exactKey(name)] {
		if e.rank == canonicalRank {
			return true
		}
	}
	return false
}

func pick(entries []entry, laboratory string) (entry, bool) {
	for _, e := range entries {
		if e.lab == "" || strings.EqualFold(e.lab, laboratory) {
			return e, true
		}
	}
	return entry{}, false
}

func resolution(e entry, kind MatchKind) Resolution {
	if e.rank == canonicalRank && kind == MatchExact {
		kind = MatchCanonical
	}
	return Resolution{Name: e.name, Standardized: true, Kind: kind, Source: e.source}
}
