package transform

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var (
	reRef      = regexp.MustCompile(`\{\{\s*ref\(\s*['"]([^'"]+)['"]\s*(?:,\s*['"]([^'"]+)['"]\s*)?\)\s*\}\}`)
	reSource   = regexp.MustCompile(`\{\{\s*source\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]\s*\)\s*\}\}`)
	reConfig   = regexp.MustCompile(`\{\{\s*config\(([^)]*)\)\s*\}\}`)
	reMatValue = regexp.MustCompile(`materialized\s*=\s*['"](\w+)['"]`)
	reComment  = regexp.MustCompile(`(?s)\{#.*?#\}`)
	reTemplate = regexp.MustCompile(`\{\{|\{%`)
)

// Model is one SQL select in a transformation package.
type Model struct {
	Name               string
	Path               string   // relative to its model path, slash separated.
	Dirs               []string // directories of Path, used to resolve project config.
	Materialized       string
	Refs               []string
	Sql                string
	configMaterialized string
	invalid            error
}

type sourceRef struct {
	source string
	table  string
}

// parseModel extracts the refs and config of a model. Template expressions other than ref, source and config
// mark the model invalid; it then fails when run.
func parseModel(relPath string, sqlText string) *Model {
	dir, file := path.Split(relPath)
	m := &Model{
		Name: strings.TrimSuffix(file, path.Ext(file)),
		Path: relPath,
		Sql:  reComment.ReplaceAllString(sqlText, ""),
	}
	if dir = strings.Trim(dir, "/"); dir != "" {
		m.Dirs = strings.Split(dir, "/")
	}
	for _, cfg := range reConfig.FindAllStringSubmatch(m.Sql, -1) {
		if v := reMatValue.FindStringSubmatch(cfg[1]); v != nil {
			m.configMaterialized = strings.ToLower(v[1])
		}
	}
	m.Sql = reConfig.ReplaceAllString(m.Sql, "")
	seen := make(map[string]bool)
	for _, r := range reRef.FindAllStringSubmatch(m.Sql, -1) {
		name := refName(r)
		if !seen[name] {
			seen[name] = true
			m.Refs = append(m.Refs, name)
		}
	}
	sort.Strings(m.Refs)
	// Anything left after removing the supported expressions is unsupported.
	rest := reSource.ReplaceAllString(reRef.ReplaceAllString(m.Sql, ""), "")
	if loc := reTemplate.FindStringIndex(rest); loc != nil {
		end := loc[0] + 40
		if end > len(rest) {
			end = len(rest)
		}
		m.invalid = fmt.Errorf("unsupported template expression near %q", strings.TrimSpace(rest[loc[0]:end]))
	}
	return m
}

// refName returns the model name of a ref match; the two-argument form names a package first.
func refName(match []string) string {
	if match[2] != "" {
		return match[2]
	}
	return match[1]
}

// render replaces ref and source expressions with qualified table names and strips a trailing semicolon.
func (m *Model) render(refFn func(model string) string, sourceFn func(s sourceRef) string) string {
	out := reRef.ReplaceAllStringFunc(m.Sql, func(s string) string {
		return refFn(refName(reRef.FindStringSubmatch(s)))
	})
	out = reSource.ReplaceAllStringFunc(out, func(s string) string {
		match := reSource.FindStringSubmatch(s)
		return sourceFn(sourceRef{source: match[1], table: match[2]})
	})
	out = strings.TrimSpace(out)
	return strings.TrimSpace(strings.TrimSuffix(out, ";"))
}
