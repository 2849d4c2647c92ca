package scheduler

import (
	"fmt"
	"sort"
)

// Scheduler orders tools into parallel execution levels
type Scheduler struct {
	deps     map[string][]string
	names    []string            // sorted tool names
	depGraph map[string][]string // tool -> tools that depend on it
}

// New builds the dependency graph. Unknown dependencies and cycles are
// reported here, never during execution.
func New(deps map[string][]string) (*Scheduler, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	copied := make(map[string][]string, len(deps))
	depGraph := make(map[string][]string)
	for _, name := range names {
		list := append([]string(nil), deps[name]...)
		sort.Strings(list)
		for _, dep := range list {
			if _, ok := deps[dep]; !ok {
				return nil, unknownDependency(name, dep)
			}
			depGraph[dep] = append(depGraph[dep], name)
		}
		copied[name] = list
	}

	s := &Scheduler{
		deps:     copied,
		names:    names,
		depGraph: depGraph,
	}
	if cycle := s.findCycle(); cycle != nil {
		return nil, cycleError(cycle)
	}
	return s, nil
}

// Tools returns all tool names in lexical order
func (s *Scheduler) Tools() []string {
	return append([]string(nil), s.names...)
}

// Dependencies returns the direct dependencies of a tool
func (s *Scheduler) Dependencies(name string) []string {
	return append([]string(nil), s.deps[name]...)
}

// Dependents returns the tools that directly depend on name
func (s *Scheduler) Dependents(name string) []string {
	return append([]string(nil), s.depGraph[name]...)
}

// Has reports whether the tool is part of the graph
func (s *Scheduler) Has(name string) bool {
	_, ok := s.deps[name]
	return ok
}

// ExecutionOrder returns the levels of the graph. Every tool appears in
// exactly one level and every dependency sits in a strictly earlier level.
// Within a level, tools that unblock more work come first.
func (s *Scheduler) ExecutionOrder() ([][]string, error) {
	completed := make(map[string]bool, len(s.names))
	remaining := len(s.names)
	var levels [][]string

	for remaining > 0 {
		var level []string
		for _, name := range s.names {
			if completed[name] {
				continue
			}
			if s.ready(name, completed) {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			// New rejects cycles, so this only fires if the graph was corrupted
			return nil, fmt.Errorf("%w: %d tools could not be scheduled", ErrCycle, remaining)
		}

		s.sortLevel(level)
		for _, name := range level {
			completed[name] = true
		}
		remaining -= len(level)
		levels = append(levels, level)
	}

	return levels, nil
}

func (s *Scheduler) ready(name string, completed map[string]bool) bool {
	for _, dep := range s.deps[name] {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func (s *Scheduler) sortLevel(level []string) {
	sort.SliceStable(level, func(i, j int) bool {
		di, dj := s.DependencyDepth(level[i]), s.DependencyDepth(level[j])
		if di != dj {
			return di > dj
		}
		return level[i] < level[j]
	})
}

// DependencyDepth returns how many tools depend (transitively) on this tool
func (s *Scheduler) DependencyDepth(name string) int {
	visited := make(map[string]bool)
	return s.countDependents(name, visited)
}

func (s *Scheduler) countDependents(name string, visited map[string]bool) int {
	count := 0
	for _, dependent := range s.depGraph[name] {
		if visited[dependent] {
			continue
		}
		visited[dependent] = true
		count += 1 + s.countDependents(dependent, visited)
	}
	return count
}

// TopologicalSort returns tools flattened in level order
func (s *Scheduler) TopologicalSort() ([]string, error) {
	levels, err := s.ExecutionOrder()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, level := range levels {
		out = append(out, level...)
	}
	return out, nil
}

// findCycle runs a deterministic DFS over dependency edges and returns one
// cycle as a closed path (first element repeated at the end), or nil.
func (s *Scheduler) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(s.names))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range s.deps[name] {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(cycle, stack[start:]...)
				cycle = append(cycle, dep)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range s.names {
		if color[name] != white {
			continue
		}
		if visit(name) {
			return cycle
		}
	}
	return nil
}
