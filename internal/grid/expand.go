package grid

import "strings"

// Expand enumerates the cartesian product of s.Params in declaration order and
// crosses it with the flags, configs outer and flags inner. Each entry renders
// as "k1 v1 k2 v2 ... kn vn" followed by a space and the flag. Values are not
// escaped.
func Expand(s Spec) []ResolvedConfig {
	combos := product(s.Params)
	flags := s.EffectiveFlags()
	out := make([]ResolvedConfig, 0, len(combos)*len(flags))
	for _, combo := range combos {
		for _, flag := range flags {
			out = append(out, ResolvedConfig(combo+" "+flag))
		}
	}
	return out
}

// product renders every combination as "key value" pairs. No params yields a
// single empty combination; any empty value list yields none.
func product(params []Param) []string {
	combos := []string{""}
	for _, p := range params {
		next := make([]string, 0, len(combos)*len(p.Values))
		for _, prefix := range combos {
			for _, v := range p.Values {
				next = append(next, joinPair(prefix, p.Key, v))
			}
		}
		combos = next
	}
	return combos
}

func joinPair(prefix, key, value string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(key) + len(value) + 2)
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString(key)
	b.WriteByte(' ')
	b.WriteString(value)
	return b.String()
}
