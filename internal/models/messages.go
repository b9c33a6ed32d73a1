package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecomputeTask — сообщение очереди пересчёта. Воркер гарантирует, что
// для одного пользователя одновременно выполняется не более одного
// пересчёта, поэтому в сообщении достаточно идентификаторов.
type RecomputeTask struct {
	TaskID  uuid.UUID `json:"task_id"`
	UserUID uuid.UUID `json:"user_uid"`
	Reason  string    `json:"reason,omitempty"` // manual, sync или schedule
}

// RenewalAlert — сообщение очереди уведомлений о предстоящем продлении
// или окончании пробного периода.
type RenewalAlert struct {
	Email      string              `json:"email"`
	Username   string              `json:"username"`
	VendorName string              `json:"vendor_name"`
	Amount     decimal.NullDecimal `json:"amount,omitempty"`
	Currency   *string             `json:"currency,omitempty"`
	Date       time.Time           `json:"date"`
	Kind       string              `json:"kind"` // renewal_due или trial_ending
}
