package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearlaw/lexengine/internal/errors"
	"github.com/clearlaw/lexengine/internal/storage"
)

// MaxAliasMatches caps how many canonical statutes a single query resolves to.
const MaxAliasMatches = 5

// DefaultAliasTTL is how long the alias table is served before a refresh.
const DefaultAliasTTL = time.Hour

// StatuteEntry is one statute in the document catalog.
type StatuteEntry struct {
	Title       string   `json:"title"`    // "Labour Act [Chapter 28:01]"
	Chapter     string   `json:"chapter"`  // "28:01"
	ShortTitles []string `json:"short_titles,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// AliasMatch is a resolved statute reference found inside a query.
type AliasMatch struct {
	Title   string // canonical title
	Chapter string
	Alias   string // the alias that matched
}

// CatalogSource supplies the statute catalog the alias table is built from.
type CatalogSource interface {
	Catalog(ctx context.Context) ([]StatuteEntry, error)
}

// StorageCatalog loads the catalog JSON from object storage.
type StorageCatalog struct {
	Store storage.ObjectStore
}

// Catalog reads and decodes the statute catalog blob.
func (s *StorageCatalog) Catalog(ctx context.Context) ([]StatuteEntry, error) {
	data, err := s.Store.Get(ctx, storage.CatalogKey())
	if err != nil {
		return nil, err
	}
	var entries []StatuteEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.DataError("decode statute catalog", err)
	}
	return entries, nil
}

// bracketedChapter strips the "[chapter 28:01]" suffix from normalized titles.
var bracketedChapter = regexp.MustCompile(`\s*\[?chapter\s+\d{1,2}:\d{2}\]?\s*$`)

type aliasEntry struct {
	alias string
	match AliasMatch
}

// AliasResolver maps query substrings to canonical statute titles. The table
// is built from the catalog and refreshed on a time-based TTL; a refresh
// failure keeps serving the stale table.
type AliasResolver struct {
	source CatalogSource
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	table    []aliasEntry // sorted longest alias first
	loadedAt time.Time
}

// NewAliasResolver creates a resolver over the given catalog source.
func NewAliasResolver(source CatalogSource, ttl time.Duration, logger *slog.Logger) *AliasResolver {
	if ttl <= 0 {
		ttl = DefaultAliasTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AliasResolver{source: source, ttl: ttl, logger: logger}
}

// Resolve returns up to MaxAliasMatches canonical statutes whose aliases are
// contained in the normalized query. Longer aliases win so "labour relations
// act" does not also match as "labour act".
func (r *AliasResolver) Resolve(ctx context.Context, normalized string) []AliasMatch {
	table := r.currentTable(ctx)

	var matches []AliasMatch
	seen := make(map[string]bool)
	claimed := make([]string, 0, MaxAliasMatches)

	for _, e := range table {
		if len(matches) >= MaxAliasMatches {
			break
		}
		if !strings.Contains(normalized, e.alias) {
			continue
		}
		if seen[e.match.Title] {
			continue
		}
		if coveredByLonger(e.alias, claimed) {
			continue
		}
		seen[e.match.Title] = true
		claimed = append(claimed, e.alias)
		m := e.match
		m.Alias = e.alias
		matches = append(matches, m)
	}

	return matches
}

// coveredByLonger reports whether alias is a substring of an already claimed
// (longer) alias, e.g. "labour act" inside "labour relations act".
func coveredByLonger(alias string, claimed []string) bool {
	for _, c := range claimed {
		if strings.Contains(c, alias) {
			return true
		}
	}
	return false
}

// currentTable returns the alias table, refreshing it when stale.
func (r *AliasResolver) currentTable(ctx context.Context) []aliasEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table != nil && time.Since(r.loadedAt) < r.ttl {
		return r.table
	}

	entries, err := r.source.Catalog(ctx)
	if err != nil {
		r.logger.Warn("alias catalog refresh failed, serving stale table",
			slog.String("error", err.Error()),
			slog.Int("stale_entries", len(r.table)))
		// Push the next refresh attempt out so a dead catalog does not get
		// hammered on every query.
		r.loadedAt = time.Now().Add(-r.ttl + time.Minute)
		if r.table == nil {
			r.table = []aliasEntry{}
		}
		return r.table
	}

	r.table = buildAliasTable(entries)
	r.loadedAt = time.Now()
	r.logger.Debug("alias table refreshed",
		slog.Int("statutes", len(entries)),
		slog.Int("aliases", len(r.table)))
	return r.table
}

// buildAliasTable flattens catalog entries into a longest-first alias list.
func buildAliasTable(entries []StatuteEntry) []aliasEntry {
	var table []aliasEntry
	add := func(alias string, entry StatuteEntry) {
		alias = Normalize(alias)
		if alias == "" {
			return
		}
		table = append(table, aliasEntry{
			alias: alias,
			match: AliasMatch{Title: entry.Title, Chapter: entry.Chapter},
		})
	}

	for _, e := range entries {
		title := Normalize(e.Title)
		add(title, e)
		// Title without the bracketed chapter suffix is the common citation form.
		if bare := strings.TrimSpace(bracketedChapter.ReplaceAllString(title, "")); bare != title {
			add(bare, e)
		}
		for _, s := range e.ShortTitles {
			add(s, e)
		}
		for _, a := range e.Aliases {
			add(a, e)
		}
	}

	sort.SliceStable(table, func(i, j int) bool {
		return len(table[i].alias) > len(table[j].alias)
	})
	return table
}
