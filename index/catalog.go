package index

import "fmt"

// Info describes an algorithm's tradeoffs for configuration endpoints.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Accuracy    string `json:"accuracy"`
	Speed       string `json:"speed"`
	Memory      string `json:"memory"`
	UseCase     string `json:"use_case"`
}

var catalog = [...]Info{
	Exact: {
		Name:        "exact",
		Description: "Linear scan computing the distance to every stored vector",
		Accuracy:    "100%",
		Speed:       "O(n) per query",
		Memory:      "vectors only",
		UseCase:     "small collections or when recall must be perfect",
	},
	LSH: {
		Name:        "lsh",
		Description: "Random hyperplane hashing into several tables; candidates from matching buckets are ranked exactly",
		Accuracy:    "approximate, improves with more tables",
		Speed:       "sub-linear per query",
		Memory:      "vectors plus one bucket entry per table",
		UseCase:     "large collections where some recall loss is acceptable",
	},
	HNSW: {
		Name:        "hnsw",
		Description: "Hierarchical navigable small world proximity graph",
		Accuracy:    "approximate, typically above 95% recall",
		Speed:       "logarithmic per query",
		Memory:      "vectors plus up to 2M links per node",
		UseCase:     "large collections needing low latency and high recall",
	},
}

// Catalog returns descriptions of all algorithms in stable order.
func Catalog() []Info {
	return append([]Info(nil), catalog[:]...)
}

// Describe returns the catalog entry for a.
func Describe(a Algorithm) Info {
	if !a.Valid() {
		return Info{Name: a.String()}
	}
	return catalog[a]
}

// Performance summarizes what a switch to (a, p) should deliver.
type Performance struct {
	Accuracy string `json:"accuracy"`
	Speed    string `json:"speed"`
	Memory   string `json:"memory"`
	Notes    string `json:"notes"`
}

// ExpectedPerformance describes the effect of p on a.
func ExpectedPerformance(a Algorithm, p Params) Performance {
	info := Describe(a)
	perf := Performance{Accuracy: info.Accuracy, Speed: info.Speed, Memory: info.Memory}

	switch a {
	case LSH:
		perf.Notes = fmt.Sprintf("%d tables of %d hyperplanes; more tables raise recall, more hyperplanes shrink buckets",
			p.NumTables, p.NumHashFunctions)
	case HNSW:
		perf.Notes = fmt.Sprintf("M=%d links per node, beam %d while building and %d while searching",
			p.M, p.EfConstruction, p.EfSearch)
	default:
		perf.Notes = "no tunable parameters"
	}
	return perf
}
