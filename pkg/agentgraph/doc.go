// Package agentgraph is the public façade for building and running state
// graphs without importing internal packages.
//
// A graph is declared with a typed state S and a typed configuration C:
//
//	g := agentgraph.NewStateGraph[State, Config]()
//	g.AddNode("agent", agent)
//	g.AddEdge(agentgraph.Start, "agent")
//	g.AddEdge("agent", agentgraph.End)
//	compiled, err := g.Compile(agentgraph.WithCheckpointer(saver))
//
// Each exported field of S is a state channel named after its json tag.
// A `reducer:"append"` or `reducer:"merge"` tag changes how node updates are
// folded into the channel; the default replaces the value.
//
// A run only starts when every channel without `omitempty` in its json tag
// has a value, from the input or from the thread's latest checkpoint.
// Otherwise it fails with dto.ErrInvalidInput wrapping ErrMissingChannel.
package agentgraph
