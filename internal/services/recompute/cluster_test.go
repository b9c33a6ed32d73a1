package recompute

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

func txWithAmount(id int64, amount string) models.Transaction {
	d := decimal.RequireFromString(amount)
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Transaction{
		ID:              id,
		Amount:          decimal.NewNullDecimal(d),
		TransactionDate: &date,
	}
}

func txWithoutAmount(id int64) models.Transaction {
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.Transaction{ID: id, TransactionDate: &date}
}

func TestAmountClusterer_Cluster(t *testing.T) {
	c := NewAmountClusterer(DefaultConfig())

	tests := []struct {
		name      string
		items     []models.Transaction
		wantSizes []int
	}{
		{
			name:      "close amounts merge into one cluster",
			items:     []models.Transaction{txWithAmount(1, "11.99"), txWithAmount(2, "12.49"), txWithAmount(3, "11.99")},
			wantSizes: []int{3},
		},
		{
			name:      "distant price tiers split",
			items:     []models.Transaction{txWithAmount(1, "9.99"), txWithAmount(2, "12.99")},
			wantSizes: []int{1, 1},
		},
		{
			name:      "amountless swept into largest cluster",
			items:     []models.Transaction{txWithAmount(1, "9.99"), txWithAmount(2, "9.99"), txWithAmount(3, "99.00"), txWithoutAmount(4)},
			wantSizes: []int{3, 1},
		},
		{
			name:      "no amounts at all stays one cluster",
			items:     []models.Transaction{txWithoutAmount(1), txWithoutAmount(2)},
			wantSizes: []int{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clusters := c.Cluster(tt.items)
			require.Len(t, clusters, len(tt.wantSizes))
			for i, want := range tt.wantSizes {
				assert.Len(t, clusters[i], want)
			}
		})
	}
}

// Две транзакции, отличающиеся не больше чем на max(1.0, 5% медианы),
// всегда попадают в один кластер.
func TestAmountClusterer_ToleranceProperty(t *testing.T) {
	c := NewAmountClusterer(DefaultConfig())

	pairs := [][2]string{
		{"10.00", "10.99"},
		{"100.00", "104.99"},
		{"5.00", "5.20"},
		{"250.00", "260.00"},
	}
	for _, pair := range pairs {
		clusters := c.Cluster([]models.Transaction{txWithAmount(1, pair[0]), txWithAmount(2, pair[1])})
		assert.Len(t, clusters, 1, "amounts %s and %s must share a cluster", pair[0], pair[1])
	}
}
