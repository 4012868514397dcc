package index

import "fmt"

// Defaults for the tunable parameters.
const (
	DefaultNumTables        = 10
	DefaultNumHashFunctions = 8
	DefaultM                = 16
	DefaultEfConstruction   = 200
	DefaultEfSearch         = 50
	DefaultRebuildThreshold = 0.2

	// MaxNumHashFunctions bounds the bucket key width.
	MaxNumHashFunctions = 64
)

// Params holds the parameters of every algorithm. Only the fields of the
// active algorithm are meaningful.
type Params struct {
	NumTables        int `json:"num_tables,omitempty" msgpack:"num_tables,omitempty" yaml:"num_tables,omitempty"`
	NumHashFunctions int `json:"num_hash_functions,omitempty" msgpack:"num_hash_functions,omitempty" yaml:"num_hash_functions,omitempty"`
	M                int `json:"M,omitempty" msgpack:"M,omitempty" yaml:"M,omitempty"`
	EfConstruction   int `json:"ef_construction,omitempty" msgpack:"ef_construction,omitempty" yaml:"ef_construction,omitempty"`
	EfSearch         int `json:"ef_search,omitempty" msgpack:"ef_search,omitempty" yaml:"ef_search,omitempty"`
}

// DefaultParams returns the defaults for a.
func DefaultParams(a Algorithm) Params {
	switch a {
	case LSH:
		return Params{NumTables: DefaultNumTables, NumHashFunctions: DefaultNumHashFunctions}
	case HNSW:
		return Params{M: DefaultM, EfConstruction: DefaultEfConstruction, EfSearch: DefaultEfSearch}
	default:
		return Params{}
	}
}

// Overrides carries optional parameter values. Nil fields keep the
// default.
type Overrides struct {
	NumTables        *int `json:"num_tables,omitempty" yaml:"num_tables,omitempty"`
	NumHashFunctions *int `json:"num_hash_functions,omitempty" yaml:"num_hash_functions,omitempty"`
	M                *int `json:"M,omitempty" yaml:"M,omitempty"`
	EfConstruction   *int `json:"ef_construction,omitempty" yaml:"ef_construction,omitempty"`
	EfSearch         *int `json:"ef_search,omitempty" yaml:"ef_search,omitempty"`
}

// Resolve merges o over the defaults of a and validates the result.
// Overrides for other algorithms are ignored.
func (o Overrides) Resolve(a Algorithm) (Params, error) {
	if !a.Valid() {
		return Params{}, fmt.Errorf("%w: %d", ErrUnknownAlgorithm, int(a))
	}

	p := DefaultParams(a)
	switch a {
	case LSH:
		set(&p.NumTables, o.NumTables)
		set(&p.NumHashFunctions, o.NumHashFunctions)
	case HNSW:
		set(&p.M, o.M)
		set(&p.EfConstruction, o.EfConstruction)
		set(&p.EfSearch, o.EfSearch)
	}

	if err := p.Validate(a); err != nil {
		return Params{}, err
	}
	return p, nil
}

func set(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// ParamError describes an out-of-range parameter.
type ParamError struct {
	Name  string
	Value int
	Min   int
	Max   int
}

func (e *ParamError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("invalid index parameter %s=%d: must be between %d and %d", e.Name, e.Value, e.Min, e.Max)
	}
	return fmt.Sprintf("invalid index parameter %s=%d: must be at least %d", e.Name, e.Value, e.Min)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

// Validate checks the fields relevant to a.
func (p Params) Validate(a Algorithm) error {
	switch a {
	case LSH:
		if p.NumTables < 1 {
			return &ParamError{Name: "num_tables", Value: p.NumTables, Min: 1}
		}
		if p.NumHashFunctions < 1 || p.NumHashFunctions > MaxNumHashFunctions {
			return &ParamError{Name: "num_hash_functions", Value: p.NumHashFunctions, Min: 1, Max: MaxNumHashFunctions}
		}
	case HNSW:
		if p.M < 1 {
			return &ParamError{Name: "M", Value: p.M, Min: 1}
		}
		if p.EfConstruction < 1 {
			return &ParamError{Name: "ef_construction", Value: p.EfConstruction, Min: 1}
		}
		if p.EfSearch < 1 {
			return &ParamError{Name: "ef_search", Value: p.EfSearch, Min: 1}
		}
	}
	return nil
}

// Map returns the parameters relevant to a keyed by their wire names.
func (p Params) Map(a Algorithm) map[string]int {
	switch a {
	case LSH:
		return map[string]int{"num_tables": p.NumTables, "num_hash_functions": p.NumHashFunctions}
	case HNSW:
		return map[string]int{"M": p.M, "ef_construction": p.EfConstruction, "ef_search": p.EfSearch}
	default:
		return map[string]int{}
	}
}
