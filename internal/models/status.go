package models

// transitions is a closed forward-only state machine keyed by the current status.
type transitions[S ~string] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitions[S]) known(s S) bool {
	_, ok := t[s]
	return ok
}

// terminal reports whether nothing leaves s.
func (t transitions[S]) terminal(s S) bool {
	next, ok := t[s]
	return ok && len(next) == 0
}

// sources returns every status that may move to `to`.
func (t transitions[S]) sources(to S) []S {
	var out []S
	for from, nexts := range t {
		for _, n := range nexts {
			if n == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
