package persist

// depGraph is a directed graph over spec indices. An edge from a to b means
// "a must be materialized before b".
type depGraph struct {
	nodes int
	out   [][]int
	seen  []map[int]bool
}

func newDepGraph(nodes int) *depGraph {
	graph := &depGraph{
		nodes: nodes,
		out:   make([][]int, nodes),
		seen:  make([]map[int]bool, nodes),
	}

	for i := range graph.seen {
		graph.seen[i] = make(map[int]bool)
	}

	return graph
}

// addEdge adds the edge from -> to. Duplicate edges are ignored so that
// overlapping edge rules cannot skew in-degrees.
func (g *depGraph) addEdge(from, to int) {
	if from == to || g.seen[from][to] {
		return
	}

	g.seen[from][to] = true
	g.out[from] = append(g.out[from], to)
}

// topoSort returns a valid execution order using Kahn's algorithm. The
// order is deterministic: nodes with no remaining dependencies are released
// in input order.
//
// When the graph contains a cycle, topoSort returns (nil, cycle) where
// cycle holds exactly the nodes lying on cycles, in input order - nodes
// that are merely downstream of a cycle are excluded so diagnostics name
// only the genuinely conflicting specs.
func (g *depGraph) topoSort() ([]int, []int) {
	inDegree := make([]int, g.nodes)
	for _, targets := range g.out {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	queue := make([]int, 0, g.nodes)
	for node := 0; node < g.nodes; node++ {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]int, 0, g.nodes)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, neighbor := range g.out[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(order) == g.nodes {
		return order, nil
	}

	return nil, g.cycleNodes(inDegree)
}

// cycleNodes narrows the unsorted remainder down to nodes that actually lie
// on a cycle: a node counts when it can reach itself through edges whose
// endpoints are all in the remainder. Quadratic, like the rest of the
// comparisons in this package.
func (g *depGraph) cycleNodes(inDegree []int) []int {
	remaining := make(map[int]bool, g.nodes)
	for node := 0; node < g.nodes; node++ {
		if inDegree[node] > 0 {
			remaining[node] = true
		}
	}

	var cycle []int

	for node := 0; node < g.nodes; node++ {
		if remaining[node] && g.reaches(node, node, remaining) {
			cycle = append(cycle, node)
		}
	}

	return cycle
}

// reaches reports whether target is reachable from start via one or more
// edges between nodes in the allowed set.
func (g *depGraph) reaches(start, target int, allowed map[int]bool) bool {
	visited := make(map[int]bool, len(allowed))
	stack := append([]int(nil), g.out[start]...)

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !allowed[node] || visited[node] {
			continue
		}

		if node == target {
			return true
		}

		visited[node] = true
		stack = append(stack, g.out[node]...)
	}

	return false
}
