package recompute

import (
	"sort"
	"time"
)

// Cadence — результат анализа периодичности списаний кластера.
type Cadence struct {
	// MedianGapDays — медианный интервал между списаниями в днях,
	// nil если интервал вычислить нельзя или он вне допустимых границ.
	MedianGapDays *int
	// VariabilityDays — медианное абсолютное отклонение интервалов от
	// медианы; требует не менее трёх дат.
	VariabilityDays *int
	// SkippedCycles — количество интервалов длиннее 1.5 медианы,
	// то есть вероятно пропущенных циклов оплаты.
	SkippedCycles int
	// PredictedNext — спрогнозированная дата следующего списания,
	// прокрученная вперёд через пропущенные циклы до даты не раньше today.
	PredictedNext *time.Time
	// PredictedIsEstimated — признак того, что дата именно спрогнозирована
	// каденсом, а не взята из явного поля письма.
	PredictedIsEstimated bool
}

// CadenceAnalyzer вычисляет периодичность списаний по набору дат.
type CadenceAnalyzer struct {
	cfg Config
}

// NewCadenceAnalyzer создает новый CadenceAnalyzer.
func NewCadenceAnalyzer(cfg Config) *CadenceAnalyzer {
	return &CadenceAnalyzer{cfg: cfg}
}

// Analyze строит отсортированную последовательность уникальных дат и
// оценивает каденс. Интервалы короче MinCadenceDays или длиннее
// MaxCadenceDays отбрасываются как ненадёжные: и шум одного дня, и
// редкие-чем-ежегодные платежи плохие улики подписки.
func (a *CadenceAnalyzer) Analyze(dates []time.Time, today time.Time) Cadence {
	days := DistinctDates(dates)
	if len(days) < 2 {
		return Cadence{}
	}

	gaps := make([]int, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		g := daysBetween(days[i-1], days[i])
		// Нулевые интервалы — несколько списаний в один день.
		if g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return Cadence{}
	}

	sorted := append([]int(nil), gaps...)
	sort.Ints(sorted)
	median := sorted[len(sorted)/2]
	if median < a.cfg.MinCadenceDays || median > a.cfg.MaxCadenceDays {
		return Cadence{}
	}

	result := Cadence{MedianGapDays: &median}

	if len(days) >= 3 {
		dev := make([]int, 0, len(gaps))
		for _, g := range gaps {
			d := g - median
			if d < 0 {
				d = -d
			}
			dev = append(dev, d)
		}
		sort.Ints(dev)
		variability := dev[len(dev)/2]
		result.VariabilityDays = &variability
	}

	threshold := int(float64(median) * 1.5)
	for _, g := range gaps {
		if g > threshold {
			result.SkippedCycles++
		}
	}

	// Прогноз: от последней даты прибавляем медианный интервал, прокручивая
	// вперёд через пропущенные циклы, пока дата не станет >= today.
	// Количество итераций ограничено, чтобы плохие данные не зациклили нас.
	next := days[len(days)-1].AddDate(0, 0, median)
	for range a.cfg.MaxRollForwardCycles {
		if !next.Before(today) {
			break
		}
		next = next.AddDate(0, 0, median)
	}
	result.PredictedNext = &next
	result.PredictedIsEstimated = true

	return result
}

// DistinctDates возвращает отсортированный список уникальных дат,
// усечённых до полуночи UTC.
func DistinctDates(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := DateOnly(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DateOnly усекает время до даты в UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
