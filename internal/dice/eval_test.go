package dice_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicelang/internal/dice"
)

// fixedSource always returns val (capped to range) for any Intn call.
type fixedSource struct{ val int }

func (f *fixedSource) Intn(n int) int {
	if f.val >= n {
		return n - 1
	}
	return f.val
}

// scriptedSource returns a fixed series of Intn draws, then panics when the
// script runs out. Draws are indices into the face set: a d6 result of 3 is
// the draw 2.
type scriptedSource struct {
	draws []int
	i     int
}

func (s *scriptedSource) Intn(n int) int {
	if s.i >= len(s.draws) {
		panic("scriptedSource: script exhausted")
	}
	v := s.draws[s.i]
	s.i++
	return v % n
}

// replaySource cycles through draws forever, wrapping around when exhausted.
// Two instances with the same draws replay identical randomness.
type replaySource struct {
	draws []int
	i     int
}

func (r *replaySource) Intn(n int) int {
	v := r.draws[r.i%len(r.draws)] % n
	r.i++
	return v
}

// TestEval_TwoDSix verifies the basic roll: draws [3,5] yield value 8 and the
// trace "2d6[3+5=8]".
func TestEval_TwoDSix(t *testing.T) {
	f := dice.MustParse("2d6")
	res, err := f.EvalTraced(&scriptedSource{draws: []int{2, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Int())
	assert.Equal(t, "2d6[3+5=8]", res.Trace)
	assert.Equal(t, []int64{3, 5}, res.Dice)
}

// TestEval_TraceMirrorsOperators verifies the trace mirrors the operator
// structure and Result.String appends the final value.
func TestEval_TraceMirrorsOperators(t *testing.T) {
	f := dice.MustParse("2d6 + 3")
	res, err := f.EvalTraced(&scriptedSource{draws: []int{2, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Int())
	assert.Equal(t, "2d6[3+5=8] + 3", res.Trace)
	assert.Equal(t, "2d6[3+5=8] + 3 = 11", res.String())
}

// TestEval_TraceParenthesization verifies parentheses appear only where the
// child operator binds more loosely than its parent.
func TestEval_TraceParenthesization(t *testing.T) {
	f := dice.MustParse("(1+2)*3")
	res, err := f.EvalTraced(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.Int())
	assert.Equal(t, "(1 + 2) * 3", res.Trace)
}

// TestEval_Untraced verifies Eval skips all trace construction.
func TestEval_Untraced(t *testing.T) {
	f := dice.MustParse("2d6 + 3")
	res, err := f.Eval(&scriptedSource{draws: []int{2, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Int())
	assert.Empty(t, res.Trace)
}

// TestEval_DropLowest verifies "4d6d1" zeroes the lowest die without removing
// it: draws [1,4,5,6] keep four dice but only 15 of value.
func TestEval_DropLowest(t *testing.T) {
	f := dice.MustParse("4d6d1")
	res, err := f.EvalTraced(&scriptedSource{draws: []int{0, 3, 4, 5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Int())
	assert.Equal(t, "4d6d1[1[0]+4+5+6=15]", res.Trace)
	assert.Equal(t, []int64{0, 4, 5, 6}, res.Dice, "dropped die stays in the pool at zero")
}

// TestEval_KeepHighest verifies "4d6k2" zeroes all but the two highest dice.
func TestEval_KeepHighest(t *testing.T) {
	f := dice.MustParse("4d6k2")
	res, err := f.Eval(&scriptedSource{draws: []int{0, 3, 4, 5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Int())
	assert.Equal(t, []int64{0, 0, 5, 6}, res.Dice)
}

// TestEval_ModifiersCompose verifies modifiers apply in formula order, each
// reading the state left by the previous: "4d6d1k2" drops the lowest, then
// keeps the top 2 of what remains.
func TestEval_ModifiersCompose(t *testing.T) {
	f := dice.MustParse("4d6d1k2")
	res, err := f.Eval(&scriptedSource{draws: []int{0, 3, 4, 5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Int())
}

// TestEval_RerollLow verifies dice at or below the threshold are redrawn once
// from faces strictly above it.
func TestEval_RerollLow(t *testing.T) {
	f := dice.MustParse("2d6r2")
	// Draws: dice 1,4; the 1 rerolls from faces {3,4,5,6}, draw index 1 → 4.
	res, err := f.EvalTraced(&scriptedSource{draws: []int{0, 3, 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Int())
	assert.Equal(t, "2d6r2[1[4]+4=8]", res.Trace)
}

// TestEval_RerollNoop verifies reroll is a no-op when no faces lie above the
// threshold.
func TestEval_RerollNoop(t *testing.T) {
	f := dice.MustParse("2d6r6")
	res, err := f.Eval(&scriptedSource{draws: []int{0, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Int())
}

// TestEval_Explode verifies a die at the threshold triggers additional draws
// added to its running total, shown in the trace as "6!4".
func TestEval_Explode(t *testing.T) {
	f := dice.MustParse("2d6e")
	// Draws: dice 3,6; the 6 explodes into a 4, which stops the chain.
	res, err := f.EvalTraced(&scriptedSource{draws: []int{2, 5, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.Int())
	assert.Equal(t, "2d6e[3+6!4=13]", res.Trace)
}

// TestEval_ExplodeChain verifies explosion repeats while the new draw also
// meets the threshold.
func TestEval_ExplodeChain(t *testing.T) {
	f := dice.MustParse("1d6e")
	// 6 explodes into 6 explodes into 2: total 14.
	res, err := f.Eval(&scriptedSource{draws: []int{5, 5, 1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(14), res.Int())
}

// TestEval_DegenerateExplode verifies "1d1e" fails before any dice are drawn:
// with the minimum face equal to the threshold, every roll would explode.
func TestEval_DegenerateExplode(t *testing.T) {
	f := dice.MustParse("1d1e")
	_, err := f.Eval(&fixedSource{}, nil)
	require.Error(t, err)
	var degenerate *dice.DegenerateModifierError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, int64(1), degenerate.Threshold)
	assert.Equal(t, int64(1), degenerate.MinFace)
}

// TestEval_DegenerateModifiedExplode verifies a single-valued face set also
// fails fast for the aggregate-threshold explode.
func TestEval_DegenerateModifiedExplode(t *testing.T) {
	f := dice.MustParse("2d1x")
	_, err := f.Eval(&fixedSource{}, nil)
	var degenerate *dice.DegenerateModifierError
	require.ErrorAs(t, err, &degenerate)
}

// TestEval_ModifiedExplode verifies the aggregate threshold: only when the
// whole pool totals count*faces does one extra die enter, and each further
// explosion requires the single new die to hit the maximum face.
func TestEval_ModifiedExplode(t *testing.T) {
	f := dice.MustParse("2d6x")
	// 6+6 = 12 meets 2*6, one extra die rolls a 5 and stops the chain.
	res, err := f.Eval(&scriptedSource{draws: []int{5, 5, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(17), res.Int())
	assert.Equal(t, []int64{6, 6, 5}, res.Dice)
}

// TestEval_ModifiedExplodeNotTriggered verifies a pool below the aggregate
// threshold draws nothing extra.
func TestEval_ModifiedExplodeNotTriggered(t *testing.T) {
	f := dice.MustParse("2d6x")
	res, err := f.Eval(&scriptedSource{draws: []int{5, 4}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Int())
	assert.Len(t, res.Dice, 2)
}

// TestEval_SequenceCoercion verifies the load-bearing coercion rule: a
// sequence used where a number is required sums its elements.
func TestEval_SequenceCoercion(t *testing.T) {
	res, err := dice.MustParse("{1,2,3}+1").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Int())

	res, err = dice.MustParse("{1,2,3}.sum()").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Int())
}

// TestEval_SequenceRange verifies inclusive integer range bounds.
func TestEval_SequenceRange(t *testing.T) {
	res, err := dice.MustParse("{1..4}").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Int())

	res, err = dice.MustParse("{1..4}.max()").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Int())
}

// TestEval_SequenceMethods exercises the pure sequence methods.
func TestEval_SequenceMethods(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"{3,1,2}.highest(2)", 5},
		{"{3,1,2}.lowest(2)", 3},
		{"{3,1,2}.min()", 1},
		{"{3,1,2}.max()", 3},
		{"{1,2,2,3}.drop(2)", 4},
		{"{5,1,4,2}.highest(2).sum()", 9},
	}
	for _, tc := range cases {
		res, err := dice.MustParse(tc.in).Eval(&fixedSource{}, nil)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, res.Int(), tc.in)
	}

	res, err := dice.MustParse("{1,2}.average()").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Float(), 1e-9)
}

// TestEval_Functions exercises the built-in function library.
func TestEval_Functions(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"ceil(7 / 2.0)", 4},
		{"floor(3.7)", 3},
		{"trunc(-1.5)", -1},
		{"round(2.4)", 2},
		{"abs(-5)", 5},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"sum(1, 2, 3)", 6},
		{"pow(2, 10)", 1024},
	}
	for _, tc := range cases {
		res, err := dice.MustParse(tc.in).Eval(&fixedSource{}, nil)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, res.Int(), tc.in)
	}

	res, err := dice.MustParse("sqrt(9)").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, res.Float(), 1e-9)

	res, err = dice.MustParse("round(2.567, 2)").Eval(&fixedSource{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.57, res.Float(), 1e-9)
}

// TestEval_FunctionCoercesDiceArgs verifies dice arguments to plain functions
// coerce to their scalar sum.
func TestEval_FunctionCoercesDiceArgs(t *testing.T) {
	// Fixed draw index 2 → every d6 is a 3.
	res, err := dice.MustParse("max(1d6, 10)").EvalTraced(&fixedSource{val: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Int())
	assert.Equal(t, "max(1d6[3]=>3, 10)=>10", res.Trace)
}

// TestEval_VariableBinding verifies "1d20 + STR" resolves STR from bindings
// and lands exactly 3 above the bare roll under identical draws.
func TestEval_VariableBinding(t *testing.T) {
	vars := dice.Bindings{"STR": 3}

	res, err := dice.MustParse("1d20 + STR").EvalTraced(&scriptedSource{draws: []int{14}}, vars)
	require.NoError(t, err)
	assert.Equal(t, int64(18), res.Int())
	assert.Equal(t, "1d20[15] + STR[3]", res.Trace)

	bare, err := dice.MustParse("1d20").Eval(&scriptedSource{draws: []int{14}}, nil)
	require.NoError(t, err)
	assert.Equal(t, bare.Int()+3, res.Int())
}

// TestEval_VariableKinds verifies the binding contract: numbers, reals,
// nested formulas, prior results, and case-insensitive resolution.
func TestEval_VariableKinds(t *testing.T) {
	vars := dice.Bindings{
		"str":   3,
		"level": int64(5),
		"speed": 2.5,
		"mod":   dice.MustParse("2 + 1"),
		"prev":  dice.Result{Value: dice.IntNumber(7)},
	}
	cases := []struct {
		in   string
		want int64
	}{
		{"STR", 3},
		{"Str + level", 8},
		{"mod", 3},
		{"prev + 1", 8},
	}
	for _, tc := range cases {
		res, err := dice.MustParse(tc.in).Eval(&fixedSource{}, vars)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, res.Int(), tc.in)
	}

	res, err := dice.MustParse("speed * 2").Eval(&fixedSource{}, vars)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res.Float(), 1e-9)
}

// TestEval_CallableBinding verifies zero- and one-argument callables bound by
// the caller are usable as functions in expressions.
func TestEval_CallableBinding(t *testing.T) {
	vars := dice.Bindings{
		"bonus": func() (dice.Value, error) {
			return dice.IntNumber(4), nil
		},
		"double": func(v dice.Value) (dice.Value, error) {
			return v.Scalar().Mul(dice.IntNumber(2)), nil
		},
	}

	res, err := dice.MustParse("bonus() + 1").Eval(&fixedSource{}, vars)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Int())

	res, err = dice.MustParse("double(21)").Eval(&fixedSource{}, vars)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Int())
}

// TestEval_UnknownName verifies unresolved identifiers fail with the missing
// name.
func TestEval_UnknownName(t *testing.T) {
	_, err := dice.MustParse("1d20 + WIS").Eval(&fixedSource{}, nil)
	require.Error(t, err)
	var unknown *dice.UnknownNameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "WIS", unknown.Name)
}

// TestEval_DivideByZero verifies division by zero propagates as an error
// rather than a panic.
func TestEval_DivideByZero(t *testing.T) {
	_, err := dice.MustParse("1 / 0").Eval(&fixedSource{}, nil)
	assert.ErrorIs(t, err, dice.ErrDivideByZero)
}

// TestEval_CustomFaces verifies non-sequential face sets like d{2,4,6}.
func TestEval_CustomFaces(t *testing.T) {
	f := dice.MustParse("1d{2,4,6}")
	res, err := f.Eval(&scriptedSource{draws: []int{1}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Int())
}

// TestEval_RepeatedRollsIndependent verifies "2d6 + 2d6" tracks two
// independent roll instances of the same die expression.
func TestEval_RepeatedRollsIndependent(t *testing.T) {
	f := dice.MustParse("2d6 + 2d6")
	res, err := f.EvalTraced(&scriptedSource{draws: []int{0, 1, 2, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Int())
	assert.Equal(t, "2d6[1+2=3] + 2d6[3+4=7]", res.Trace)
}

// TestBounds verifies deterministic theoretical bounds.
func TestBounds(t *testing.T) {
	cases := []struct {
		in       string
		min, max int64
	}{
		{"1d20 + 5", 6, 25},
		{"2d6", 2, 12},
		{"4d6d1", 4, 24}, // modifiers are skipped in forced-roll mode
		{"2d{2,4,6}", 4, 12},
		{"2d6 * 2", 4, 24},
	}
	for _, tc := range cases {
		f := dice.MustParse(tc.in)
		minOut, maxOut, err := f.Bounds(nil)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.min, minOut, "%s min", tc.in)
		assert.Equal(t, tc.max, maxOut, "%s max", tc.in)
	}
}

// TestBounds_Deterministic verifies bounds are a pure function of the tree.
func TestBounds_Deterministic(t *testing.T) {
	f := dice.MustParse("3d8 + 1d4 - 2")
	min1, max1, err := f.Bounds(nil)
	require.NoError(t, err)
	min2, max2, err := f.Bounds(nil)
	require.NoError(t, err)
	assert.Equal(t, min1, min2)
	assert.Equal(t, max1, max2)
}

// TestEval_SumInvariant_Property verifies that for "NdS" with no modifiers
// the result is the sum of exactly N draws, each within the face range.
func TestEval_SumInvariant_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(rt, "n")
		sides := rapid.SampledFrom([]int{4, 6, 8, 10, 12, 20}).Draw(rt, "sides")
		draws := rapid.SliceOfN(rapid.IntRange(0, 1<<20), n, n).Draw(rt, "draws")

		f := dice.MustParse(fmt.Sprintf("%dd%d", n, sides))
		res, err := f.Eval(&replaySource{draws: draws}, nil)
		require.NoError(rt, err)

		require.Len(rt, res.Dice, n)
		var sum int64
		for _, d := range res.Dice {
			assert.GreaterOrEqual(rt, d, int64(1))
			assert.LessOrEqual(rt, d, int64(sides))
			sum += d
		}
		assert.Equal(rt, sum, res.Int())
	})
}

// TestEval_DropKeepComplement_Property verifies dropping the lowest K equals
// keeping the highest N-K over identical draws.
func TestEval_DropKeepComplement_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(rt, "n")
		k := rapid.IntRange(1, n-1).Draw(rt, "k")
		sides := rapid.SampledFrom([]int{4, 6, 8}).Draw(rt, "sides")
		draws := rapid.SliceOfN(rapid.IntRange(0, 1<<20), n, n).Draw(rt, "draws")

		dropped, err := dice.MustParse(fmt.Sprintf("%dd%dd%d", n, sides, k)).
			Eval(&replaySource{draws: draws}, nil)
		require.NoError(rt, err)

		kept, err := dice.MustParse(fmt.Sprintf("%dd%dk%d", n, sides, n-k)).
			Eval(&replaySource{draws: draws}, nil)
		require.NoError(rt, err)

		assert.Equal(rt, dropped.Int(), kept.Int(),
			"drop lowest %d and keep highest %d must agree over the same draws", k, n-k)
	})
}

// TestEval_ExplodeMonotonicity_Property verifies exploding dice never lower
// the result relative to the same dice without the modifier.
func TestEval_ExplodeMonotonicity_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		sides := rapid.SampledFrom([]int{4, 6, 8}).Draw(rt, "sides")
		draws := rapid.SliceOfN(rapid.IntRange(0, 1<<20), n+16, n+16).Draw(rt, "draws")
		// A guaranteed non-maximum draw keeps explosion chains finite even
		// when rapid generates an all-maximum script.
		draws = append(draws, 0)

		base, err := dice.MustParse(fmt.Sprintf("%dd%d", n, sides)).
			Eval(&replaySource{draws: draws}, nil)
		require.NoError(rt, err)

		exploded, err := dice.MustParse(fmt.Sprintf("%dd%de", n, sides)).
			Eval(&replaySource{draws: draws}, nil)
		require.NoError(rt, err)

		assert.GreaterOrEqual(rt, exploded.Int(), base.Int())
	})
}
