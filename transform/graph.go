package transform

import (
	"fmt"
	"sort"
	"strings"
)

// executionPlan orders models so that every model runs after the models it refs.
type executionPlan struct {
	order      []*Model // models in run order; models that cannot be ordered come last.
	byName     map[string]*Model
	failures   map[string]error // models that fail without running: unknown refs, cycles, unsupported templates.
	duplicates []*Model         // second and later definitions of a model name.
}

// newExecutionPlan builds the dependency graph. Models run level by level; within a level by name.
func newExecutionPlan(models []*Model) *executionPlan {
	p := &executionPlan{
		byName:   make(map[string]*Model, len(models)),
		failures: make(map[string]error),
	}
	for _, m := range models {
		if _, ok := p.byName[m.Name]; ok {
			p.duplicates = append(p.duplicates, m)
			continue
		}
		p.byName[m.Name] = m
	}
	deps := make(map[string][]string, len(p.byName))
	dependents := make(map[string][]string, len(p.byName))
	inDegree := make(map[string]int, len(p.byName))
	for name, m := range p.byName {
		inDegree[name] = 0
		if m.invalid != nil {
			p.failures[name] = m.invalid
		}
		for _, r := range m.Refs {
			if _, ok := p.byName[r]; !ok {
				if _, failed := p.failures[name]; !failed {
					p.failures[name] = fmt.Errorf("unknown model %q referenced", r)
				}
				continue
			}
			deps[name] = append(deps[name], r)
			dependents[r] = append(dependents[r], name)
			inDegree[name]++
		}
	}
	level := make([]string, 0)
	for name, n := range inDegree {
		if n == 0 {
			level = append(level, name)
		}
	}
	done := make(map[string]bool, len(p.byName))
	for len(level) > 0 {
		sort.Strings(level)
		next := make([]string, 0)
		for _, name := range level {
			done[name] = true
			p.order = append(p.order, p.byName[name])
			for _, d := range dependents[name] {
				inDegree[d]--
				if inDegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		level = next
	}
	// What remains is in a cycle or depends on one.
	remaining := make([]string, 0)
	for name := range p.byName {
		if !done[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	inCycle := make([]*Model, 0)
	blocked := make([]*Model, 0)
	for _, name := range remaining {
		if cycle := findCycle(name, deps, done); cycle != nil {
			p.failures[name] = fmt.Errorf("dependency cycle: %v", strings.Join(cycle, " -> "))
			inCycle = append(inCycle, p.byName[name])
		} else {
			blocked = append(blocked, p.byName[name])
		}
	}
	p.order = append(p.order, inCycle...)
	p.order = append(p.order, blocked...)
	return p
}

// findCycle returns the path from start back to itself through models not yet ordered, or nil.
func findCycle(start string, deps map[string][]string, done map[string]bool) []string {
	visited := make(map[string]bool)
	var walk func(name string, path []string) []string
	walk = func(name string, path []string) []string {
		for _, d := range deps[name] {
			if done[d] {
				continue
			}
			if d == start {
				return append(path, d)
			}
			if visited[d] {
				continue
			}
			visited[d] = true
			if found := walk(d, append(path, d)); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(start, []string{start})
}
