// Package dag orders named nodes by their dependency edges.
//
// The mock uses it to insert referenced tables before the tables that
// reference them:
//
//	levels, err := dag.BuildLevels(&dag.Graph{
//	    Nodes: []string{"human", "pet", "soulmates"},
//	    Edges: []dag.Edge{{From: "human", To: "soulmates"}, {From: "pet", To: "soulmates"}},
//	})
//	// levels: [[human pet] [soulmates]]
package dag
