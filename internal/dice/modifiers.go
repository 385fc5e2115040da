package dice

import (
	"fmt"
	"sort"
)

// applyMod applies one modifier instruction to the current per-die results.
// Modifiers compose in formula order: each reads and writes the state left by
// the previous one ("4d6d1k2" drops the lowest, then keeps the top 2 of what
// remains). The returned slice replaces the caller's; modified-explode is the
// only modifier that grows it.
func applyMod(m Mod, n *DieRoll, dieType string, dice []*die, faces []int64, st *evalState) ([]*die, error) {
	minFace, maxFace := minMaxFaces(faces)
	switch m.Code {
	case 'd':
		drop := int64(1)
		if m.HasN {
			drop = m.N
		}
		dropLowest(dice, int(drop), st.trace)
	case 'k':
		keep := int64(1)
		if m.HasN {
			keep = m.N
		}
		keepHighest(dice, int(keep), st.trace)
	case 'r':
		low := minFace
		if m.HasN {
			low = m.N
		}
		rerollLow(dice, faces, low, st)
	case 'e':
		high := maxFace
		if m.HasN {
			high = m.N
		}
		explode(dice, dieType, faces, high, st)
	case 'x':
		high := int64(n.Count) * maxFace
		if m.HasN {
			high = m.N
		}
		dice = modifiedExplode(dice, dieType, faces, high, maxFace, st)
	default:
		return nil, &EvalError{Node: n.String(), Msg: fmt.Sprintf("unknown modifier %q", string(m.Code))}
	}
	return dice, nil
}

// sortedByValue returns dice indices ordered by die value ascending. The sort
// is stable so ties resolve in roll order.
func sortedByValue(dice []*die) []int {
	idx := make([]int, len(dice))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dice[idx[a]].value < dice[idx[b]].value
	})
	return idx
}

// dropLowest zeroes the n lowest dice. The dice stay in the result sequence
// so the count is preserved; only their contribution is nullified, shown in
// the trace as "r[0]".
func dropLowest(dice []*die, n int, trace bool) {
	if n > len(dice) {
		n = len(dice)
	}
	for _, i := range sortedByValue(dice)[:n] {
		d := dice[i]
		if trace {
			d.desc = fmt.Sprintf("%d[0]", d.value)
		}
		d.value = 0
	}
}

// keepHighest zeroes all but the n highest dice, the inverse of dropLowest.
// Ties keep the later roll.
func keepHighest(dice []*die, n int, trace bool) {
	if n >= len(dice) {
		return
	}
	for _, i := range sortedByValue(dice)[:len(dice)-n] {
		d := dice[i]
		if trace {
			d.desc = fmt.Sprintf("%d[0]", d.value)
		}
		d.value = 0
	}
}

// rerollLow redraws, once, every die at or below low, drawing only from faces
// strictly above low. When no such faces exist the modifier is a no-op: a
// uniformly-low die set cannot be improved.
func rerollLow(dice []*die, faces []int64, low int64, st *evalState) {
	var high []int64
	for _, f := range faces {
		if f > low {
			high = append(high, f)
		}
	}
	if len(high) == 0 {
		return
	}
	for _, d := range dice {
		if d.value > low {
			continue
		}
		redrawn := high[st.src.Intn(len(high))]
		if st.trace {
			d.desc = fmt.Sprintf("%d[%d]", d.value, redrawn)
		}
		d.value = redrawn
	}
}

// explode draws an additional die for every die at or above high, adding the
// draw to that die's running total and repeating while the new draw also
// meets the threshold. The degenerate case (high <= minimum face) is rejected
// before any dice are drawn, so this always terminates.
func explode(dice []*die, dieType string, faces []int64, high int64, st *evalState) {
	for _, d := range dice {
		for r := d.value; r >= high; {
			extra := st.rollDie(dieType, faces)
			r = extra.value
			d.value += r
			if st.trace {
				d.desc += fmt.Sprintf("!%d", r)
			}
		}
	}
}

// modifiedExplode compares the accumulated pool total against high. The first
// explosion draws one additional die and drops the threshold to a single
// die's maximum face; each further explosion repeats while the new die keeps
// hitting that maximum.
func modifiedExplode(dice []*die, dieType string, faces []int64, high, maxFace int64, st *evalState) []*die {
	var total int64
	for _, d := range dice {
		total += d.value
	}
	for total >= high {
		high = maxFace
		extra := st.rollDie(dieType, faces)
		dice = append(dice, extra)
		total = extra.value
	}
	return dice
}
