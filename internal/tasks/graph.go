package tasks

import "fmt"

// Graph holds the tasks of a run in declaration order and verifies the
// dependency relation is acyclic.
type Graph struct {
	tasks []*Task
	index map[string]*Task
}

// NewGraph collects the given root tasks plus everything reachable through
// dependencies and subtasks, then validates the result with Kahn's
// algorithm. Returns an error if the graph contains a cycle.
func NewGraph(roots ...*Task) (*Graph, error) {
	g := &Graph{
		index: make(map[string]*Task),
	}
	for _, root := range roots {
		if err := g.collect(root); err != nil {
			return nil, err
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// collect walks dependencies and subtasks depth-first, keeping first-seen
// order. The scheduler uses that order to break ties between ready tasks.
// Two distinct tasks sharing an ID is an error, not a silent dedupe.
func (g *Graph) collect(t *Task) error {
	if t == nil {
		return nil
	}
	if existing, seen := g.index[t.ID]; seen {
		if existing != t {
			return fmt.Errorf("distinct tasks share id %s (objective %q)", t.ID, t.Objective)
		}
		return nil
	}
	g.index[t.ID] = t
	g.tasks = append(g.tasks, t)

	for _, dep := range t.Dependencies() {
		if err := g.collect(dep); err != nil {
			return err
		}
	}
	for _, sub := range t.Subtasks() {
		if err := g.collect(sub); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.tasks))
	dependents := make(map[string][]string, len(g.tasks))

	for _, t := range g.tasks {
		inDegree[t.ID] += 0
		for _, dep := range t.Dependencies() {
			inDegree[t.ID]++
			dependents[dep.ID] = append(dependents[dep.ID], t.ID)
		}
	}

	var queue []string
	for _, t := range g.tasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	resolved := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		resolved++

		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if resolved != len(g.tasks) {
		return fmt.Errorf("cycle detected in task dependencies")
	}
	return nil
}

// Tasks returns all collected tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	result := make([]*Task, len(g.tasks))
	copy(result, g.tasks)
	return result
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(id string) *Task {
	return g.index[id]
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Ready returns the incomplete tasks whose dependencies are all resolved,
// in declaration order.
func (g *Graph) Ready() []*Task {
	var ready []*Task
	for _, t := range g.tasks {
		if t.IsReady() {
			ready = append(ready, t)
		}
	}
	return ready
}

// Incomplete reports whether any task in the graph still needs work.
func (g *Graph) Incomplete() bool {
	for _, t := range g.tasks {
		if t.IsIncomplete() {
			return true
		}
	}
	return false
}
