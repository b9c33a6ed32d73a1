package recompute

import (
	"fmt"
	"time"
)

// Evidence собирает слабые сигналы одного кластера для оценки уверенности:
// количество списаний, каденс и его стабильность, явные признаки подписки,
// наличие и стабильность суммы, свежесть последнего списания.
type Evidence struct {
	ChargeCount       int
	MedianGapDays     *int
	VariabilityDays   *int
	SkippedCycles     int
	FlaggedCount      int
	LastChargeDate    *time.Time
	AmountMedian      *float64
	AmountVariability *float64
}

// ConfidenceScorer переводит улики в оценку [0,1] и человекочитаемые причины.
// Score — чистая функция своих аргументов: без состояния и случайности,
// одинаковые улики всегда дают одинаковую оценку. Это условие идемпотентности
// пересчёта.
type ConfidenceScorer struct {
	cfg Config
}

// NewConfidenceScorer создает новый ConfidenceScorer.
func NewConfidenceScorer(cfg Config) *ConfidenceScorer {
	return &ConfidenceScorer{cfg: cfg}
}

// Score считает взвешенную аддитивную оценку с фиксированными весами:
// количество списаний до 0.45, наличие каденса 0.15, его стабильность до
// 0.15, явные признаки 0.15, свежесть 0.10, наличие и стабильность суммы
// до 0.10. Итог зажимается в [0,1], причины ограничены cfg.MaxReasons.
func (s *ConfidenceScorer) Score(ev Evidence) (float64, []string) {
	var reasons []string
	score := 0.0

	switch {
	case ev.ChargeCount >= 3:
		score += 0.45
		reasons = append(reasons, fmt.Sprintf("Found %d charges for this vendor.", ev.ChargeCount))
	case ev.ChargeCount == 2:
		score += 0.25
		reasons = append(reasons, "Found 2 charges for this vendor.")
	case ev.ChargeCount == 1:
		reasons = append(reasons, "Only 1 charge found (lower confidence).")
	}

	if ev.MedianGapDays != nil {
		score += 0.15
		reasons = append(reasons, fmt.Sprintf("Median interval between charges is ~%d days.", *ev.MedianGapDays))
		if ev.VariabilityDays != nil {
			switch {
			case *ev.VariabilityDays <= 3:
				score += 0.15
				reasons = append(reasons, "Charge interval is consistent (low variance).")
			case *ev.VariabilityDays <= 7:
				score += 0.08
				reasons = append(reasons, "Charge interval is moderately consistent.")
			default:
				reasons = append(reasons, "Charge interval varies a lot (lower confidence).")
			}
		}
	}

	if ev.FlaggedCount > 0 {
		score += 0.15
		reasons = append(reasons, "At least one email/transaction was flagged as subscription/trial/renewal.")
	}

	if ev.LastChargeDate != nil {
		score += 0.10
		reasons = append(reasons, fmt.Sprintf("Most recent charge on %s.", ev.LastChargeDate.Format(time.DateOnly)))
	}

	if ev.AmountMedian != nil {
		score += 0.05
		reasons = append(reasons, "Charge amount is available.")
		if ev.AmountVariability != nil {
			stableTol := *ev.AmountMedian * 0.03
			if stableTol < 0.5 {
				stableTol = 0.5
			}
			if *ev.AmountVariability <= stableTol {
				score += 0.05
				reasons = append(reasons, "Charge amounts are consistent.")
			} else {
				reasons = append(reasons, "Charge amounts vary across cycles.")
			}
		}
	}

	if ev.SkippedCycles > 0 {
		reasons = append(reasons, fmt.Sprintf("%d longer-than-usual gap(s) in charges detected.", ev.SkippedCycles))
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if len(reasons) > s.cfg.MaxReasons {
		reasons = reasons[:s.cfg.MaxReasons]
	}
	return score, reasons
}
