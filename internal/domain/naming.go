package domain

import "strconv"

// UniqueUsername returns requested if it is not taken, otherwise requested
// suffixed with the smallest positive integer that is free. Suffixes freed by
// departed participants are reused. The base is shortened so the result stays
// within maxLen runes; non-positive maxLen falls back to MaxUsernameLen.
func UniqueUsername(requested string, taken map[string]struct{}, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxUsernameLen
	}
	if _, ok := taken[requested]; !ok {
		return requested
	}
	base := []rune(requested)
	for n := 1; ; n++ {
		suffix := strconv.Itoa(n)
		keep := min(len(base), maxLen-len(suffix))
		candidate := string(base[:max(keep, 0)]) + suffix
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
