// Package casematch correlates files that belong to the same case across
// directories populated independently of each other.
//
// Names are reduced to a canonical numeric ID: the first run of decimal
// digits in the file name, left-padded with zeros to a fixed width. Digits
// are never removed, so "CASE_00489_pred.nii.gz" and "img-489_0000.nii.gz"
// both map to "00489" at width 5 while "case_0000489" stays "0000489".
package casematch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"roikit/internal/models"
)

// DefaultWidth is the zero-pad width of canonical IDs
const DefaultWidth = 5

// maxListed bounds the IDs quoted in one warning
const maxListed = 10

var (
	// ErrNoInputFiles is returned when a directory holds no matching file
	ErrNoInputFiles = errors.New("no input files found")

	// ErrNoCommonCases is returned when no ID is present in every directory
	ErrNoCommonCases = errors.New("no case IDs common to all inputs")
)

// ExtractID returns the canonical ID of name. ok is false when the name
// holds no digits. IDs longer than width are kept whole.
func ExtractID(name string, width int) (id string, ok bool) {
	start := strings.IndexFunc(name, isDigit)
	if start < 0 {
		return "", false
	}
	end := start
	for end < len(name) && isDigit(rune(name[end])) {
		end++
	}

	digits := name[start:end]
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	return digits, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Source is one input directory and the files in it that take part in matching
type Source struct {
	// Role names the source in results and logs, e.g. "pred"
	Role string

	Dir string

	// Suffixes filters entries by case-insensitive name suffix; empty accepts all files
	Suffixes []string
}

func (s Source) accepts(name string) bool {
	if len(s.Suffixes) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, suf := range s.Suffixes {
		if strings.HasSuffix(lower, strings.ToLower(suf)) {
			return true
		}
	}
	return false
}

// Collision records files of one source that map to the same ID
type Collision struct {
	Role      string
	ID        string
	Kept      string
	Discarded []string
}

// Index is the ID to path map of one source
type Index struct {
	Source     Source
	Paths      map[string]string
	Collisions []Collision

	// Unparsed lists files whose names carry no digits
	Unparsed []string
}

// IDs returns the indexed IDs in sorted order
func (ix *Index) IDs() []string {
	return sortedKeys(ix.Paths)
}

// Build scans the source directory. Entries are visited in name order, so
// on collision the lexically first file wins.
func Build(src Source, width int) (*Index, error) {
	entries, err := os.ReadDir(src.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", src.Role, err)
	}

	ix := &Index{Source: src, Paths: make(map[string]string)}
	discarded := make(map[string][]string)

	for _, e := range entries {
		if e.IsDir() || !src.accepts(e.Name()) {
			continue
		}
		path := filepath.Join(src.Dir, e.Name())
		id, ok := ExtractID(e.Name(), width)
		if !ok {
			ix.Unparsed = append(ix.Unparsed, path)
			continue
		}
		if _, dup := ix.Paths[id]; dup {
			discarded[id] = append(discarded[id], path)
			continue
		}
		ix.Paths[id] = path
	}

	if len(ix.Paths) == 0 && len(ix.Unparsed) == 0 {
		return nil, fmt.Errorf("%w in %s directory %s", ErrNoInputFiles, src.Role, src.Dir)
	}

	for _, id := range sortedKeys(discarded) {
		ix.Collisions = append(ix.Collisions, Collision{
			Role:      src.Role,
			ID:        id,
			Kept:      ix.Paths[id],
			Discarded: discarded[id],
		})
	}
	return ix, nil
}

// Result is the structured outcome of matching
type Result struct {
	// Cases are the IDs present in every source, sorted
	Cases []models.Case

	// Missing maps each role to the IDs seen in some other source but not in it
	Missing map[string][]string

	Collisions []Collision
	Unparsed   []string
}

// Warnings renders the non-fatal findings of the match, one line each
func (r *Result) Warnings() []string {
	var out []string
	for _, c := range r.Collisions {
		out = append(out, fmt.Sprintf("duplicate %s files for ID %s: using %s, ignoring %s",
			c.Role, c.ID, c.Kept, strings.Join(c.Discarded, ", ")))
	}
	for _, path := range r.Unparsed {
		out = append(out, fmt.Sprintf("no case ID in file name, skipping %s", path))
	}
	for _, role := range sortedKeys(r.Missing) {
		ids := r.Missing[role]
		out = append(out, fmt.Sprintf("%d ID(s) missing from %s: %s", len(ids), role, truncate(ids)))
	}
	return out
}

// Match indexes every source and intersects their IDs
func Match(width int, sources ...Source) (*Result, error) {
	indexes := make([]*Index, 0, len(sources))
	for _, src := range sources {
		ix, err := Build(src, width)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, ix)
	}
	return Intersect(indexes...)
}

// Intersect combines already built indexes into a Result
func Intersect(indexes ...*Index) (*Result, error) {
	res := &Result{Missing: make(map[string][]string)}

	all := make(map[string]int)
	for _, ix := range indexes {
		for id := range ix.Paths {
			all[id]++
		}
		res.Collisions = append(res.Collisions, ix.Collisions...)
		res.Unparsed = append(res.Unparsed, ix.Unparsed...)
	}

	for _, ix := range indexes {
		var missing []string
		for id := range all {
			if _, ok := ix.Paths[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			res.Missing[ix.Source.Role] = missing
		}
	}

	for _, id := range sortedKeys(all) {
		if all[id] != len(indexes) {
			continue
		}
		c := models.Case{ID: id, Paths: make(map[string]string, len(indexes))}
		for _, ix := range indexes {
			c.Paths[ix.Source.Role] = ix.Paths[id]
		}
		res.Cases = append(res.Cases, c)
	}

	for _, w := range res.Warnings() {
		slog.Warn(w)
	}
	if len(res.Cases) == 0 {
		return res, ErrNoCommonCases
	}
	slog.Info("Matched cases", "common", len(res.Cases), "sources", len(indexes))
	return res, nil
}

func truncate(ids []string) string {
	if len(ids) <= maxListed {
		return strings.Join(ids, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(ids[:maxListed], ", "), len(ids)-maxListed)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
