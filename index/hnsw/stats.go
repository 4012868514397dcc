package hnsw

// Stats describes the shape of the graph.
type Stats struct {
	Nodes      int
	Live       int
	Tombstones int
	MaxLevel   int
	// Per layer, from 0 up.
	NodesPerLevel []int
	AvgLinks      []float64
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	s := Stats{
		Nodes:      len(h.nodes),
		Live:       len(h.slots),
		Tombstones: h.Tombstones(),
		MaxLevel:   h.maxLevel,
	}
	if h.maxLevel < 0 {
		return s
	}

	s.NodesPerLevel = make([]int, h.maxLevel+1)
	links := make([]int, h.maxLevel+1)
	for i := range h.nodes {
		n := &h.nodes[i]
		for l := 0; l <= n.level; l++ {
			s.NodesPerLevel[l]++
			links[l] += len(n.links[l])
		}
	}

	s.AvgLinks = make([]float64, len(links))
	for l, total := range links {
		s.AvgLinks[l] = float64(total) / float64(max(1, s.NodesPerLevel[l]))
	}
	return s
}
