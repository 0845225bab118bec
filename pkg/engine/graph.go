package engine

import "fmt"

// StepGraph is an ordered list of uniquely named steps. There is no explicit
// dependency edge between steps: each step may assume every earlier step
// already ran, and nothing more.
type StepGraph struct {
	steps []Step
	index map[string]int
}

// NewStepGraph builds a graph from steps in declaration order, rejecting
// duplicate or empty names.
func NewStepGraph(steps ...Step) (*StepGraph, error) {
	g := &StepGraph{
		steps: make([]Step, 0, len(steps)),
		index: make(map[string]int, len(steps)),
	}
	for _, s := range steps {
		if err := g.Add(s); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add appends a step to the graph.
func (g *StepGraph) Add(s Step) error {
	if s.Name == "" {
		return NewInternalError("step name must not be empty", nil)
	}
	if _, exists := g.index[s.Name]; exists {
		return NewInternalError(fmt.Sprintf("duplicate step name: %s", s.Name), nil)
	}
	g.index[s.Name] = len(g.steps)
	g.steps = append(g.steps, s)
	return nil
}

// Steps returns the steps in declaration order.
func (g *StepGraph) Steps() []Step {
	return g.steps
}

// Len returns the number of steps.
func (g *StepGraph) Len() int {
	return len(g.steps)
}

// Get returns the named step.
func (g *StepGraph) Get(name string) (Step, bool) {
	i, ok := g.index[name]
	if !ok {
		return Step{}, false
	}
	return g.steps[i], true
}

// Names returns the step names in declaration order.
func (g *StepGraph) Names() []string {
	names := make([]string, len(g.steps))
	for i, s := range g.steps {
		names[i] = s.Name
	}
	return names
}

// Subset returns a new graph containing only the named steps, preserving the
// original declaration order regardless of the order names are given in.
// This backs targeted repair: re-running a single step without the rest.
func (g *StepGraph) Subset(names []string) (*StepGraph, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := g.index[n]; !ok {
			return nil, NewInternalError(fmt.Sprintf("unknown step: %s", n), nil)
		}
		want[n] = true
	}
	sub := make([]Step, 0, len(want))
	for _, s := range g.steps {
		if want[s.Name] {
			sub = append(sub, s)
		}
	}
	return NewStepGraph(sub...)
}
