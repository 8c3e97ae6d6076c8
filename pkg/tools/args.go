package tools

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Args is an ordered string to string mapping. Setting an existing key
// replaces its value and moves it to the end, so iteration follows the order
// of last writes.
type Args struct {
	m *orderedmap.OrderedMap[string, string]
}

func NewArgs() Args {
	return Args{m: orderedmap.New[string, string]()}
}

// ArgsOf builds Args from alternating keys and values.
func ArgsOf(kv ...string) Args {
	if len(kv)%2 != 0 {
		panic("ArgsOf odd number of arguments")
	}

	args := NewArgs()
	for i := 0; i < len(kv); i += 2 {
		args.Set(kv[i], kv[i+1])
	}
	return args
}

func (a *Args) Set(key, value string) {
	if a.m == nil {
		a.m = orderedmap.New[string, string]()
	}
	a.m.Delete(key)
	a.m.Set(key, value)
}

func (a Args) Get(key string) (string, bool) {
	if a.m == nil {
		return "", false
	}
	return a.m.Get(key)
}

// Lookup returns the value of the first key present.
func (a Args) Lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := a.Get(key); ok {
			return value, true
		}
	}
	return "", false
}

func (a Args) Len() int {
	if a.m == nil {
		return 0
	}
	return a.m.Len()
}

func (a Args) Keys() []string {
	keys := make([]string, 0, a.Len())
	if a.m == nil {
		return keys
	}
	for pair := a.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Equal reports whether both mappings hold the same pairs in the same order.
func (a Args) Equal(b Args) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.m == nil {
		return true
	}

	pb := b.m.Oldest()
	for pa := a.m.Oldest(); pa != nil; pa = pa.Next() {
		if pa.Key != pb.Key || pa.Value != pb.Value {
			return false
		}
		pb = pb.Next()
	}
	return true
}

func (a Args) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, key := range a.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		value, _ := a.Get(key)
		fmt.Fprintf(&sb, "%s: %q", key, value)
	}
	sb.WriteByte('}')
	return sb.String()
}
