package memory

// minPackTurns is the minimum group size before the packer closes a group
// at the min-chars threshold. Replay data arrives all at once, so without
// this floor a few long turns would produce degenerate two-line chunks.
const minPackTurns = 3

// Pack greedily groups an ordered turn sequence into chunk-sized groups
// using the same size thresholds as live buffering. Boundary rules, in
// order: a group is closed before a turn that would push it past maxChars,
// and immediately after a turn that brings it to minChars with at least
// three members. Any trailing group is closed at end of input.
func Pack(turns []Turn, minChars, maxChars int) [][]Turn {
	var (
		groups  [][]Turn
		current []Turn
		size    int
	)

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
			size = 0
		}
	}

	for _, t := range turns {
		if len(current) > 0 && size+turnSize(t) > maxChars {
			flush()
		}

		current = append(current, t)
		size += turnSize(t)

		if size >= minChars && len(current) >= minPackTurns {
			flush()
		}
	}
	flush()

	return groups
}
