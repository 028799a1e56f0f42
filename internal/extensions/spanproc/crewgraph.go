package spanproc

import (
	"encoding/json"
)

// crewAgent is one agent declared on a Crew.kickoff span.
type crewAgent struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Goal string `json:"goal,omitempty"`
}

// crewTaskDecl is one planned task declared on a Crew.kickoff span.
type crewTaskDecl struct {
	ID          string `json:"id"`
	Key         string `json:"key,omitempty"`
	Description string `json:"description,omitempty"`
	Agent       string `json:"agent,omitempty"`
}

// CrewGraph captures the crew structure declared at kickoff: agents, the
// planned task order, and the process mode. In sequential mode planned
// tasks execute in declaration order; in hierarchical mode the manager
// agent delegates, so only the manager-to-worker structure is implied.
type CrewGraph struct {
	Process string
	Agents  []crewAgent
	Planned []crewTaskDecl
}

// newCrewGraphFromKickoff parses the crew declaration off the kickoff
// span's attributes. Missing or malformed declarations produce an empty
// graph, never an error: extraction proceeds on timing alone.
func newCrewGraphFromKickoff(attrs map[string]any) *CrewGraph {
	g := &CrewGraph{Process: crewProcessSeq}
	if process, ok := attrs[attrCrewProcess].(string); ok && process != "" {
		g.Process = process
	}
	if raw, ok := attrs[attrCrewAgents].(string); ok {
		_ = json.Unmarshal([]byte(raw), &g.Agents)
	}
	if raw, ok := attrs[attrCrewTasks].(string); ok {
		_ = json.Unmarshal([]byte(raw), &g.Planned)
	}
	return g
}

// plannedIndex returns the declaration position of a crew task key/id, or
// -1 when unknown.
func (g *CrewGraph) plannedIndex(keyOrID string) int {
	if keyOrID == "" {
		return -1
	}
	for i, decl := range g.Planned {
		if decl.ID == keyOrID || decl.Key == keyOrID {
			return i
		}
	}
	return -1
}

// agentRole resolves an agent id to its role name.
func (g *CrewGraph) agentRole(agentID string) string {
	for _, agent := range g.Agents {
		if agent.ID == agentID {
			return agent.Role
		}
	}
	return ""
}

// sequential reports whether planned tasks execute in declaration order.
func (g *CrewGraph) sequential() bool {
	return g.Process != crewProcessHier
}
