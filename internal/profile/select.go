package profile

import "sort"

// Select returns the highest-scoring profile for platform among
// candidates. Ties are broken by lexicographically smallest identifier.
// Returns NoCompatibleProfileError if every candidate scores below zero.
func Select(candidates []Profile, platform string) (Profile, error) {
	type scored struct {
		profile Profile
		score   int
	}

	var best *scored
	for _, p := range candidates {
		s := p.Score(platform)
		if s < 0 {
			continue
		}
		switch {
		case best == nil:
			best = &scored{profile: p, score: s}
		case s > best.score:
			best = &scored{profile: p, score: s}
		case s == best.score && p.Identifier < best.profile.Identifier:
			best = &scored{profile: p, score: s}
		}
	}

	if best == nil {
		return Profile{}, &NoCompatibleProfileError{Platform: platform}
	}
	return best.profile, nil
}

// rank returns candidates sorted by descending score (ties by ascending
// identifier), for the diagnostic Reload report.
func rank(candidates []Profile, platform string) []Profile {
	out := append([]Profile(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score(platform), out[j].Score(platform)
		if si != sj {
			return si > sj
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}
