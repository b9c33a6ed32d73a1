package recompute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestConfidenceScorer_Score(t *testing.T) {
	s := NewConfidenceScorer(DefaultConfig())
	last := day(2025, 4, 21)

	t.Run("zero evidence yields zero score and no reasons", func(t *testing.T) {
		score, reasons := s.Score(Evidence{})
		assert.Equal(t, 0.0, score)
		assert.Empty(t, reasons)
	})

	t.Run("single charge gives only the low-count reason", func(t *testing.T) {
		score, reasons := s.Score(Evidence{ChargeCount: 1})
		assert.Equal(t, 0.0, score)
		assert.Equal(t, []string{"Only 1 charge found (lower confidence)."}, reasons)
	})

	t.Run("steady monthly subscription scores high", func(t *testing.T) {
		score, reasons := s.Score(Evidence{
			ChargeCount:       4,
			MedianGapDays:     intPtr(30),
			VariabilityDays:   intPtr(0),
			FlaggedCount:      1,
			LastChargeDate:    &last,
			AmountMedian:      floatPtr(11.99),
			AmountVariability: floatPtr(0),
		})
		assert.GreaterOrEqual(t, score, 0.7)
		assert.LessOrEqual(t, score, 1.0)
		assert.NotEmpty(t, reasons)
	})

	t.Run("score always clamped to [0,1]", func(t *testing.T) {
		cases := []Evidence{
			{},
			{ChargeCount: 2},
			{ChargeCount: 100, MedianGapDays: intPtr(30), VariabilityDays: intPtr(1),
				FlaggedCount: 50, LastChargeDate: &last, AmountMedian: floatPtr(9.99),
				AmountVariability: floatPtr(0.01), SkippedCycles: 3},
			{ChargeCount: 3, MedianGapDays: intPtr(365), VariabilityDays: intPtr(20)},
		}
		for _, ev := range cases {
			score, _ := s.Score(ev)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("reasons capped at configured maximum", func(t *testing.T) {
		_, reasons := s.Score(Evidence{
			ChargeCount:       5,
			MedianGapDays:     intPtr(30),
			VariabilityDays:   intPtr(10),
			FlaggedCount:      2,
			LastChargeDate:    &last,
			AmountMedian:      floatPtr(15.49),
			AmountVariability: floatPtr(5),
			SkippedCycles:     2,
		})
		assert.LessOrEqual(t, len(reasons), DefaultConfig().MaxReasons)
	})

	t.Run("identical evidence yields identical score", func(t *testing.T) {
		ev := Evidence{ChargeCount: 3, MedianGapDays: intPtr(30), VariabilityDays: intPtr(2),
			LastChargeDate: &last, AmountMedian: floatPtr(10)}
		s1, r1 := s.Score(ev)
		s2, r2 := s.Score(ev)
		assert.Equal(t, s1, s2)
		assert.Equal(t, r1, r2)
	})

	t.Run("unstable amounts do not add the stability weight", func(t *testing.T) {
		stable, _ := s.Score(Evidence{ChargeCount: 3, AmountMedian: floatPtr(100), AmountVariability: floatPtr(1)})
		unstable, _ := s.Score(Evidence{ChargeCount: 3, AmountMedian: floatPtr(100), AmountVariability: floatPtr(20)})
		assert.Greater(t, stable, unstable)
	})
}
