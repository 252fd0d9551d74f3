package scalar

// HiddenList is a set of tokens excluded from display.
//
// A token equal to a metric name hides every variant of the metric.
// A token equal to Pair.Token() (metric name followed by variant name) hides the pair only.
//
// A nil HiddenList means "not established yet", which is different from an empty one.
type HiddenList []string

// NewHiddenList creates an established list, dropping duplicated tokens.
func NewHiddenList(tokens ...string) HiddenList {
	h := HiddenList{}
	seen := map[string]struct{}{}
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		h = append(h, t)
	}
	return h
}

func (h HiddenList) Established() bool {
	return h != nil
}

func (h HiddenList) Contains(token string) bool {
	for _, t := range h {
		if t == token {
			return true
		}
	}
	return false
}

// Toggle returns a new list where token is removed if it was there, or added otherwise.
func (h HiddenList) Toggle(token string) HiddenList {
	if h.Contains(token) {
		out := HiddenList{}
		for _, t := range h {
			if t != token {
				out = append(out, t)
			}
		}
		return out
	}
	return NewHiddenList(append(append([]string{}, h...), token)...)
}

// Index makes a set for fast membership tests.
func (h HiddenList) Index() HiddenIndex {
	idx := HiddenIndex{}
	for _, t := range h {
		idx[t] = struct{}{}
	}
	return idx
}

// Equal compares as sets. An established empty list is not equal to nil.
func (h HiddenList) Equal(other HiddenList) bool {
	if h.Established() != other.Established() {
		return false
	}
	a, b := h.Index(), other.Index()
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if _, ok := b[t]; !ok {
			return false
		}
	}
	return true
}

type HiddenIndex map[string]struct{}

func (idx HiddenIndex) Has(token string) bool {
	_, ok := idx[token]
	return ok
}

// HidesPair tells whether the pair is hidden.
//
// Metric tokens always hide. Per-variant tokens hide only when perVariant is true,
// that is, when variants are charted separately.
func (idx HiddenIndex) HidesPair(p Pair, perVariant bool) bool {
	if idx.Has(p.Metric) {
		return true
	}
	return perVariant && idx.Has(p.Token())
}
