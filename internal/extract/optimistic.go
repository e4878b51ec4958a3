package extract

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/DeusData/endpointgen/internal/endpoint"
)

// parseOptimistic recognizes the two optimistic block shapes.
//
// Single:  { target: "listTasks", args: (a) => ..., update: (draft, a) => ... }
// Multi:   { updates: [ { target, args, update, condition? }, ... ] }
//
// A top-level target key selects the single shape, otherwise an updates key
// selects the multi shape. Any required key missing drops the whole block
// (single) or that element (multi); nil means nothing usable was found.
func parseOptimistic(text string) []endpoint.OptimisticUpdate {
	entries, ok := objectEntries(text)
	if !ok {
		return nil
	}

	if _, ok := lookup(entries, "target"); ok {
		u, ok := optimisticUpdate(entries, false)
		if !ok {
			return nil
		}
		return []endpoint.OptimisticUpdate{u}
	}

	updates, ok := lookup(entries, "updates")
	if !ok {
		return nil
	}
	elements, ok := arrayElements(updates)
	if !ok {
		return nil
	}
	var out []endpoint.OptimisticUpdate
	for _, el := range elements {
		elEntries, ok := objectEntries(el)
		if !ok {
			continue
		}
		if u, ok := optimisticUpdate(elEntries, true); ok {
			out = append(out, u)
		}
	}
	return out
}

func optimisticUpdate(entries []entry, allowCondition bool) (endpoint.OptimisticUpdate, bool) {
	var u endpoint.OptimisticUpdate
	target, ok := lookup(entries, "target")
	if !ok {
		return u, false
	}
	if u.Target, ok = stringLiteral(target); !ok || u.Target == "" {
		return u, false
	}
	if u.Args, ok = lookup(entries, "args"); !ok {
		return u, false
	}
	if u.Update, ok = lookup(entries, "update"); !ok {
		return u, false
	}
	if allowCondition {
		u.Condition, _ = lookup(entries, "condition")
	}
	return u, true
}

var quotedTokenRe = regexp.MustCompile("\"([^\"]*)\"|'([^']*)'|`([^`]*)`")

// tagTypes collects quoted tokens starting with an upper-case letter from
// tag fragments, sorted and deduplicated.
func tagTypes(fragments ...string) []string {
	seen := make(map[string]bool)
	for _, frag := range fragments {
		for _, m := range quotedTokenRe.FindAllStringSubmatch(frag, -1) {
			tok := m[1] + m[2] + m[3]
			if tok == "" {
				continue
			}
			r, _ := utf8.DecodeRuneInString(tok)
			if unicode.IsUpper(r) {
				seen[tok] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
