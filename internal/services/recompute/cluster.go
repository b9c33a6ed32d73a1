package recompute

import (
	"sort"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

// AmountClusterer разбивает группу транзакций одного продавца на кластеры
// по сумме, чтобы разные тарифы одного сервиса стали разными подписками.
//
// Алгоритм сознательно прост: сортировка по сумме и один проход слева
// направо с центром-скользящим средним. Это не общий алгоритм
// кластеризации — он жадный, на равных суммах зависит от порядка и
// намеренно консервативен, чтобы не склеивать разные ценовые уровни.
type AmountClusterer struct {
	cfg Config
}

// NewAmountClusterer создает новый AmountClusterer с заданными допусками.
func NewAmountClusterer(cfg Config) *AmountClusterer {
	return &AmountClusterer{cfg: cfg}
}

// Cluster разбивает транзакции на кластеры по сумме. Транзакции без суммы
// не участвуют в проходе и добавляются к самому большому кластеру; если
// сумм нет ни у одной, вся группа остаётся одним кластером.
func (c *AmountClusterer) Cluster(items []models.Transaction) [][]models.Transaction {
	type withAmount struct {
		tx     models.Transaction
		amount float64
	}

	priced := make([]withAmount, 0, len(items))
	var unpriced []models.Transaction
	for _, tx := range items {
		if tx.Amount.Valid {
			priced = append(priced, withAmount{tx: tx, amount: tx.Amount.Decimal.InexactFloat64()})
		} else {
			unpriced = append(unpriced, tx)
		}
	}

	if len(priced) == 0 {
		return [][]models.Transaction{items}
	}

	sort.SliceStable(priced, func(i, j int) bool {
		return priced[i].amount < priced[j].amount
	})

	var clusters [][]models.Transaction
	var cur []models.Transaction
	var center float64

	for _, item := range priced {
		if cur == nil {
			cur = []models.Transaction{item.tx}
			center = item.amount
			continue
		}
		tol := c.cfg.AmountAbsTolerance
		if rel := c.cfg.AmountRelTolerance * abs(center); rel > tol {
			tol = rel
		}
		if abs(item.amount-center) <= tol {
			cur = append(cur, item.tx)
			// Центр пересчитывается как скользящее среднее кластера.
			center = (center*float64(len(cur)-1) + item.amount) / float64(len(cur))
		} else {
			clusters = append(clusters, cur)
			cur = []models.Transaction{item.tx}
			center = item.amount
		}
	}
	clusters = append(clusters, cur)

	if len(unpriced) > 0 {
		largest := 0
		for i, cl := range clusters {
			if len(cl) > len(clusters[largest]) {
				largest = i
			}
		}
		clusters[largest] = append(clusters[largest], unpriced...)
	}

	return clusters
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
