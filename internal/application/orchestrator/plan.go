package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"github.com/gammazero/toposort"
	"golang.org/x/sync/errgroup"
)

// Step is one named unit of a Plan. Steps listed in After complete before
// Run starts, so Run may read values they wrote.
type Step struct {
	Name  string
	After []string
	Run   func(ctx context.Context) error
}

// Plan is a validated set of steps grouped into levels. Steps in the same
// level have no dependency on each other and run concurrently.
type Plan struct {
	levels [][]Step
}

// NewPlan validates steps: names are unique and non-empty, dependencies exist,
// and the graph has no cycle.
func NewPlan(steps ...Step) (*Plan, error) {
	byName := make(map[string]Step, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("plan step without a name")
		}
		if s.Run == nil {
			return nil, fmt.Errorf("plan step %q has no Run func", s.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("plan step %q declared twice", s.Name)
		}
		byName[s.Name] = s
	}

	edges := make([]toposort.Edge, 0, len(steps))
	for _, s := range steps {
		if len(s.After) == 0 {
			edges = append(edges, toposort.Edge{nil, s.Name})
			continue
		}
		for _, dep := range s.After {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("plan step %q depends on unknown step %q", s.Name, dep)
			}
			edges = append(edges, toposort.Edge{dep, s.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("plan contains a cycle: %w", err)
	}

	depth := make(map[string]int, len(steps))
	maxDepth := 0
	for _, node := range sorted {
		name, ok := node.(string)
		if !ok {
			continue
		}
		d := 0
		for _, dep := range byName[name].After {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	if len(depth) != len(byName) {
		return nil, fmt.Errorf("plan ordering lost %d steps", len(byName)-len(depth))
	}

	levels := make([][]Step, maxDepth+1)
	for _, s := range steps {
		levels[depth[s.Name]] = append(levels[depth[s.Name]], s)
	}
	for _, level := range levels {
		sort.SliceStable(level, func(i, j int) bool { return level[i].Name < level[j].Name })
	}

	return &Plan{levels: levels}, nil
}

// Levels returns the step names per level, for logging and tests.
func (p *Plan) Levels() [][]string {
	out := make([][]string, len(p.levels))
	for i, level := range p.levels {
		for _, s := range level {
			out[i] = append(out[i], s.Name)
		}
	}
	return out
}

// Run executes the plan level by level. A failing step cancels its level and
// stops the plan.
func (p *Plan) Run(ctx context.Context) error {
	for _, level := range p.levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range level {
			g.Go(func() error {
				sctx, span := telemetry.StartSpan(gctx, "plan."+s.Name)
				defer span.End()
				if err := s.Run(sctx); err != nil {
					telemetry.RecordError(span, err)
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
