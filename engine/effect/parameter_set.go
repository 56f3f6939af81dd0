package effect

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"strings"
)

// Parameter is one permutation-affecting key/value pair. Values must be comparable.
type Parameter struct {
	Key   string
	Value any
}

// ParameterSet is a key-ordered set of permutation parameters. Two sets holding the same
// pairs are equal and hash the same regardless of insertion order.
type ParameterSet struct {
	entries []Parameter
}

// NewParameterSet creates a set from alternating key/value pairs.
//
// Parameters:
//   - pairs: the parameters to set
//
// Returns:
//   - *ParameterSet: the populated set
func NewParameterSet(pairs ...Parameter) *ParameterSet {
	p := &ParameterSet{}
	for _, kv := range pairs {
		p.Set(kv.Key, kv.Value)
	}
	return p
}

// Set inserts or replaces a parameter.
//
// Parameters:
//   - key: the parameter name
//   - value: a comparable value (bool, integer, float, string)
func (p *ParameterSet) Set(key string, value any) {
	i, found := slices.BinarySearchFunc(p.entries, key, func(e Parameter, k string) int {
		return strings.Compare(e.Key, k)
	})
	if found {
		p.entries[i].Value = value
		return
	}
	p.entries = slices.Insert(p.entries, i, Parameter{Key: key, Value: value})
}

// Get returns the value of a parameter.
func (p *ParameterSet) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	i, found := slices.BinarySearchFunc(p.entries, key, func(e Parameter, k string) int {
		return strings.Compare(e.Key, k)
	})
	if !found {
		return nil, false
	}
	return p.entries[i].Value, true
}

// Bool returns a boolean parameter, false when absent or not a bool.
func (p *ParameterSet) Bool(key string) bool {
	v, _ := p.Get(key)
	b, _ := v.(bool)
	return b
}

// Len returns the number of parameters.
func (p *ParameterSet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Entries returns the parameters in key order. The slice must not be modified.
func (p *ParameterSet) Entries() []Parameter {
	if p == nil {
		return nil
	}
	return p.entries
}

// Clear removes every parameter, keeping the backing storage.
func (p *ParameterSet) Clear() {
	clear(p.entries)
	p.entries = p.entries[:0]
}

// Clone returns an independent copy.
func (p *ParameterSet) Clone() *ParameterSet {
	if p == nil {
		return &ParameterSet{}
	}
	return &ParameterSet{entries: slices.Clone(p.entries)}
}

// Equal reports whether both sets hold the same pairs.
func (p *ParameterSet) Equal(other *ParameterSet) bool {
	if p.Len() != other.Len() {
		return false
	}
	for i, e := range p.Entries() {
		o := other.entries[i]
		if e.Key != o.Key || e.Value != o.Value {
			return false
		}
	}
	return true
}

// Hash returns the FNV-1a hash of the set, stable across processes.
func (p *ParameterSet) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range p.Entries() {
		h.Write([]byte(e.Key))
		h.Write([]byte{0})
		switch v := e.Value.(type) {
		case bool:
			if v {
				h.Write([]byte{'b', 1})
			} else {
				h.Write([]byte{'b', 0})
			}
		case int:
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write([]byte{'i'})
			h.Write(buf[:])
		case uint32:
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			h.Write([]byte{'u'})
			h.Write(buf[:])
		case float32:
			binary.LittleEndian.PutUint64(buf[:], uint64(math.Float32bits(v)))
			h.Write([]byte{'f'})
			h.Write(buf[:])
		case float64:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write([]byte{'d'})
			h.Write(buf[:])
		case string:
			h.Write([]byte{'s'})
			h.Write([]byte(v))
		default:
			h.Write([]byte{'?'})
			h.Write([]byte(fmt.Sprint(v)))
		}
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// String formats the set as "key=value,..." for logs.
func (p *ParameterSet) String() string {
	var sb strings.Builder
	for i, e := range p.Entries() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%v", e.Key, e.Value)
	}
	return sb.String()
}
