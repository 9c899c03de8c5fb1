package render

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"sort"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

const DeterminismVersion = "render-v2"

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes every catalog placeholder in markup with its HTML-escaped value.
// Unknown placeholders and malformed braces are left as written.
func Render(markup string, vars domain.VariableMap) string {
	return placeholderRE.ReplaceAllStringFunc(markup, func(m string) string {
		match := placeholderRE.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		v, known := vars.Lookup(domain.VarKey(match[1]))
		if !known {
			return m
		}
		return html.EscapeString(v)
	})
}

type Placeholder struct {
	Key   string `json:"key"`
	Known bool   `json:"known"`
	Count int    `json:"count"`
}

// Placeholders lists distinct placeholders found in markup, sorted by key.
func Placeholders(markup string) []Placeholder {
	counts := map[string]int{}
	for _, m := range placeholderRE.FindAllStringSubmatch(markup, -1) {
		counts[m[1]]++
	}
	out := make([]Placeholder, 0, len(counts))
	for k, n := range counts {
		out = append(out, Placeholder{Key: k, Known: domain.IsKnownVar(domain.VarKey(k)), Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// UnknownPlaceholders is the lint view of Placeholders.
func UnknownPlaceholders(markup string) []string {
	var out []string
	for _, p := range Placeholders(markup) {
		if !p.Known {
			out = append(out, p.Key)
		}
	}
	return out
}

func HashRendered(rendered string) string {
	sum := sha256.Sum256([]byte(rendered))
	return "sha256:" + hex.EncodeToString(sum[:])
}
