package runenv

import "regexp"

type filterKind int

const (
	filterNone filterKind = iota
	filterPredicate
	filterPattern
)

// Filter selects which logical names are decrypted. The zero value selects
// every name.
type Filter struct {
	kind      filterKind
	predicate func(name string) bool
	pattern   *regexp.Regexp
}

func ByPredicate(fn func(name string) bool) Filter {
	if fn == nil {
		return Filter{}
	}
	return Filter{kind: filterPredicate, predicate: fn}
}

func ByPattern(re *regexp.Regexp) Filter {
	if re == nil {
		return Filter{}
	}
	return Filter{kind: filterPattern, pattern: re}
}

func ByNames(names ...string) Filter {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return ByPredicate(func(name string) bool { return set[name] })
}

func (f Filter) Match(name string) bool {
	switch f.kind {
	case filterPredicate:
		return f.predicate(name)
	case filterPattern:
		return f.pattern.MatchString(name)
	default:
		return true
	}
}
