// Package gazetteer canonicalizes free-text location fragments against
// static synonym tables. It backs the location validator's fast path: pure
// lookup over tables embedded at build time, no network or I/O.
package gazetteer

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Location is a canonicalized place. Empty fields were not recognized.
type Location struct {
	City    string
	State   string
	Country string
}

// Mentions aggregates all recognized place names found in a passage, in
// first-occurrence order with duplicates removed.
type Mentions struct {
	Cities    []string
	States    []string
	Countries []string
}

type cityEntry struct {
	Canonical string   `yaml:"canonical"`
	State     string   `yaml:"state"`
	Country   string   `yaml:"country"`
	Synonyms  []string `yaml:"synonyms"`
}

type stateEntry struct {
	Canonical string   `yaml:"canonical"`
	Country   string   `yaml:"country"`
	Synonyms  []string `yaml:"synonyms"`
}

type countryEntry struct {
	Canonical string   `yaml:"canonical"`
	Synonyms  []string `yaml:"synonyms"`
}

type tables struct {
	Cities    []cityEntry    `yaml:"cities"`
	States    []stateEntry   `yaml:"states"`
	Countries []countryEntry `yaml:"countries"`
}

// Gazetteer is the process-wide, read-only lookup structure. Safe for
// concurrent use after New returns.
type Gazetteer struct {
	cityByKey    map[string]cityEntry
	stateByKey   map[string]stateEntry
	countryByKey map[string]string

	cityRe    *regexp.Regexp
	stateRe   *regexp.Regexp
	countryRe *regexp.Regexp
	hintRe    *regexp.Regexp
}

// New parses the embedded tables and builds the lookup indexes.
func New() (*Gazetteer, error) {
	var t tables
	if err := yaml.Unmarshal(tablesYAML, &t); err != nil {
		return nil, fmt.Errorf("op=gazetteer.New: %w", err)
	}
	g := &Gazetteer{
		cityByKey:    make(map[string]cityEntry),
		stateByKey:   make(map[string]stateEntry),
		countryByKey: make(map[string]string),
	}
	var cityKeys, stateKeys, countryKeys []string
	for _, c := range t.Cities {
		for _, key := range append([]string{c.Canonical}, c.Synonyms...) {
			k := normalizeKey(key)
			g.cityByKey[k] = c
			cityKeys = append(cityKeys, k)
		}
	}
	for _, s := range t.States {
		for _, key := range append([]string{s.Canonical}, s.Synonyms...) {
			k := normalizeKey(key)
			g.stateByKey[k] = s
			stateKeys = append(stateKeys, k)
		}
	}
	for _, c := range t.Countries {
		for _, key := range append([]string{c.Canonical}, c.Synonyms...) {
			g.countryByKey[normalizeKey(key)] = c.Canonical
			countryKeys = append(countryKeys, normalizeKey(key))
		}
	}
	g.cityRe = alternation(cityKeys)
	g.stateRe = alternation(stateKeys)
	g.countryRe = alternation(countryKeys)
	// Lead-ins that usually introduce a work location, followed by one to
	// three capitalized words. Used to spot place-like tokens the tables do
	// not know.
	g.hintRe = regexp.MustCompile(`(?:(?i:based in|located in|location:|office in|offices in|work from|onsite in|on-site in|relocate to|position in|hybrid in))\s+(\p{Lu}[\p{L}.'-]*(?:\s+\p{Lu}[\p{L}.'-]*){0,2})`)
	return g, nil
}

// MustNew is New for wiring paths where the embedded tables are trusted.
func MustNew() *Gazetteer {
	g, err := New()
	if err != nil {
		panic(err)
	}
	return g
}

// alternation compiles a case-insensitive word-bounded alternation of keys,
// longest first so multi-word names win over their substrings.
func alternation(keys []string) *regexp.Regexp {
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	quoted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// normalizeKey lowercases and strips the punctuation variance seen in
// location metadata so that lookups are format-insensitive.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("/", " ", ",", " ", "(", " ", ")", " ").Replace(s)
	s = strings.TrimSuffix(s, ".")
	return strings.Join(strings.Fields(s), " ")
}

// lookupCity resolves one segment to a city entry, applying the
// "City am Main"-style suffix stripping when the full key is unknown.
func (g *Gazetteer) lookupCity(segment string) (cityEntry, bool) {
	k := normalizeKey(segment)
	if e, ok := g.cityByKey[k]; ok {
		return e, true
	}
	for _, sep := range []string{" am ", " an der ", " upon ", " on the "} {
		if i := strings.Index(k, sep); i > 0 {
			if e, ok := g.cityByKey[k[:i]]; ok {
				return e, true
			}
		}
	}
	return cityEntry{}, false
}

// Normalize canonicalizes a short location fragment ("Frankfurt am Main",
// "Berlin, Deutschland", "Pune / India") into city, state, and country.
// The second return is false when nothing in the fragment was recognized.
// Normalization is idempotent: canonical names resolve to themselves.
func (g *Gazetteer) Normalize(text string) (Location, bool) {
	var loc Location
	found := false
	for _, seg := range splitSegments(text) {
		if loc.City == "" {
			if e, ok := g.lookupCity(seg); ok {
				loc.City = e.Canonical
				loc.State = e.State
				loc.Country = e.Country
				found = true
				continue
			}
		}
		k := normalizeKey(seg)
		if loc.Country == "" || loc.City == "" {
			if c, ok := g.countryByKey[k]; ok {
				loc.Country = c
				found = true
				continue
			}
		}
		if loc.State == "" {
			if s, ok := g.stateByKey[k]; ok {
				loc.State = s.Canonical
				if loc.Country == "" {
					loc.Country = s.Country
				}
				found = true
			}
		}
	}
	return loc, found
}

func splitSegments(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '/' || r == ';' || r == '|' || r == '·'
	})
}

// Canonical renders a Location back into the "City, Country" form used for
// authoritative locations. State-only or country-only locations degrade
// gracefully.
func Canonical(loc Location) string {
	parts := make([]string, 0, 2)
	if loc.City != "" {
		parts = append(parts, loc.City)
	} else if loc.State != "" {
		parts = append(parts, loc.State)
	}
	if loc.Country != "" && loc.Country != loc.City {
		parts = append(parts, loc.Country)
	}
	return strings.Join(parts, ", ")
}

// ExtractMentions scans a longer passage for all recognized place names.
func (g *Gazetteer) ExtractMentions(text string) Mentions {
	var m Mentions
	seenC := map[string]struct{}{}
	for _, hit := range g.cityRe.FindAllString(text, -1) {
		if e, ok := g.lookupCity(hit); ok {
			if _, dup := seenC[e.Canonical]; !dup {
				seenC[e.Canonical] = struct{}{}
				m.Cities = append(m.Cities, e.Canonical)
			}
		}
	}
	seenS := map[string]struct{}{}
	for _, hit := range g.stateRe.FindAllString(text, -1) {
		if e, ok := g.stateByKey[normalizeKey(hit)]; ok {
			if _, dup := seenS[e.Canonical]; !dup {
				seenS[e.Canonical] = struct{}{}
				m.States = append(m.States, e.Canonical)
			}
		}
	}
	seenN := map[string]struct{}{}
	for _, hit := range g.countryRe.FindAllString(text, -1) {
		if c, ok := g.countryByKey[normalizeKey(hit)]; ok {
			if _, dup := seenN[c]; !dup {
				seenN[c] = struct{}{}
				m.Countries = append(m.Countries, c)
			}
		}
	}
	return m
}

// UnknownPlaceHints returns capitalized tokens that follow typical location
// lead-ins ("based in", "office in", ...) but resolve to nothing in the
// tables. A non-empty result means the passage talks about places the fast
// path cannot judge.
func (g *Gazetteer) UnknownPlaceHints(text string) []string {
	var hints []string
	seen := map[string]struct{}{}
	for _, match := range g.hintRe.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(match[1])
		k := normalizeKey(candidate)
		if _, ok := g.cityByKey[k]; ok {
			continue
		}
		if _, ok := g.lookupCity(candidate); ok {
			continue
		}
		if _, ok := g.countryByKey[k]; ok {
			continue
		}
		if _, ok := g.stateByKey[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		hints = append(hints, candidate)
	}
	return hints
}

// SameCity reports whether two location fragments canonicalize to the same
// city. Falls back to normalized string equality when neither fragment
// contains a known city, so formatting variants of unknown places still
// compare equal.
func (g *Gazetteer) SameCity(a, b string) bool {
	la, okA := g.Normalize(a)
	lb, okB := g.Normalize(b)
	if okA && okB && la.City != "" && lb.City != "" {
		return la.City == lb.City
	}
	return normalizeKey(a) == normalizeKey(b)
}

// Similarity is a token-overlap score in [0,1] between two location strings
// after key normalization. Cheap stand-in for semantic similarity in the
// conflict safety overrides.
func (g *Gazetteer) Similarity(a, b string) float64 {
	ta := strings.Fields(normalizeKey(a))
	tb := strings.Fields(normalizeKey(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}
	union := make(map[string]struct{}, len(ta)+len(tb))
	for _, t := range ta {
		union[t] = struct{}{}
	}
	inter := 0
	for _, t := range tb {
		if _, ok := set[t]; ok {
			inter++
		}
		union[t] = struct{}{}
	}
	return float64(inter) / float64(len(union))
}
