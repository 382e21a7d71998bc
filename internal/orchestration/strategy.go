package orchestration

import "github.com/dohr-michael/loom/internal/agents"

// TurnStrategy picks which agent takes the next turn on a task when several
// are assigned. Strategies must be deterministic: the same task, candidates
// and turn number always yield the same agent.
type TurnStrategy interface {
	NextAgent(candidates []*agents.Agent, turn int) *agents.Agent
}

// RoundRobin rotates through the candidates in declaration order, advancing
// one position per turn. The default strategy.
type RoundRobin struct{}

func (RoundRobin) NextAgent(candidates []*agents.Agent, turn int) *agents.Agent {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[turn%len(candidates)]
}

// Single pins every turn to one agent, ignoring the candidates.
type Single struct {
	Agent *agents.Agent
}

func (s Single) NextAgent(_ []*agents.Agent, _ int) *agents.Agent {
	return s.Agent
}
