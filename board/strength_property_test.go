package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/swarmflow/types"
)

func genSeedSignal() *rapid.Generator[types.Signal] {
	return rapid.Custom(func(t *rapid.T) types.Signal {
		return types.Signal{
			SourceWorker: rapid.SampledFrom(types.AllRoles()).Draw(t, "role"),
			Type:         rapid.SampledFrom([]types.SignalType{types.SignalFact, types.SignalObservation, types.SignalRisk}).Draw(t, "type"),
			Dimension:    rapid.SampledFrom(types.AllDimensions()).Draw(t, "dimension"),
			Content:      rapid.StringMatching(`[a-zA-Z0-9 ]{5,60}`).Draw(t, "content"),
			Confidence:   rapid.Float64Range(0, 1).Draw(t, "confidence"),
			Strength:     rapid.Float64Range(types.MinStrength, types.MaxStrength).Draw(t, "strength"),
			Sentiment:    rapid.SampledFrom([]types.Sentiment{types.SentimentPositive, types.SentimentNegative, types.SentimentNeutral}).Draw(t, "sentiment"),
		}
	})
}

// After any sequence of reinforce, challenge and decay operations, every
// signal's strength stays inside [0.1, 3.0] and its confidence is untouched.
func TestStrengthBoundsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := New(zap.NewNop())

		numSignals := rapid.IntRange(1, 8).Draw(rt, "numSignals")
		ids := make([]string, 0, numSignals)
		seedConfidence := make(map[string]float64, numSignals)
		for i := 0; i < numSignals; i++ {
			added, err := b.Add(genSeedSignal().Draw(rt, "seed"))
			require.NoError(rt, err)
			ids = append(ids, added.ID)
			seedConfidence[added.ID] = added.Confidence
		}

		numOps := rapid.IntRange(0, 40).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			id := rapid.SampledFrom(ids).Draw(rt, "target")
			actor := rapid.SampledFrom(types.AllRoles()).Draw(rt, "actor")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				require.NoError(rt, b.Reinforce(id, actor))
			case 1:
				counter := genSeedSignal().Draw(rt, "counter")
				added, err := b.Challenge(id, actor, counter)
				require.NoError(rt, err)
				ids = append(ids, added.SignalB)
				got, ok := b.Get(added.SignalB)
				require.True(rt, ok)
				seedConfidence[added.SignalB] = got.Confidence
			case 2:
				b.DecayUnreferenced()
			case 3:
				delta := rapid.Float64Range(-2, 2).Draw(rt, "delta")
				_, err := b.AdjustStrength(id, delta, actor)
				require.NoError(rt, err)
			}
		}

		for _, id := range ids {
			sig, ok := b.Get(id)
			require.True(rt, ok)
			assert.GreaterOrEqual(rt, sig.Strength, types.MinStrength)
			assert.LessOrEqual(rt, sig.Strength, types.MaxStrength)
			assert.Equal(rt, seedConfidence[id], sig.Confidence,
				"confidence is immutable once the signal is on the board")
		}
	})
}

// Conflicts are only ever opened once per signal pair, no matter how often
// detection runs or how many challenges repeat between the same actors.
func TestConflictPairUniquenessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := New(zap.NewNop())

		numSignals := rapid.IntRange(2, 6).Draw(rt, "numSignals")
		for i := 0; i < numSignals; i++ {
			_, err := b.Add(genSeedSignal().Draw(rt, "seed"))
			require.NoError(rt, err)
		}

		rounds := rapid.IntRange(1, 5).Draw(rt, "rounds")
		for i := 0; i < rounds; i++ {
			b.DetectConflicts()
		}

		seen := map[string]bool{}
		for _, c := range b.Conflicts() {
			key := pairKey(c.SignalA, c.SignalB)
			assert.False(rt, seen[key], "duplicate conflict for pair %s", key)
			seen[key] = true
		}
	})
}
