package domain

// End is the terminal marker of every workflow graph.
const End = "__end__"

// GraphDescription is a read-only view of a compiled workflow graph,
// used for introspection and visualization.
type GraphDescription struct {
	Start string     `json:"start"`
	Nodes []NodeInfo `json:"nodes"`
	Edges []Edge     `json:"edges"`
}

// NodeInfo describes one node of the graph.
type NodeInfo struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools,omitempty"`
}

// Edge is a labelled conditional transition.
type Edge struct {
	From  string `json:"from"`
	Label string `json:"label"`
	To    string `json:"to"`
}
