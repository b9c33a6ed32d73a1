package recompute

// Config задаёт пороги движка пересчёта подписок. Раньше такие значения
// жили в глобальных переменных модуля; здесь они собраны в явную структуру,
// которая передаётся в конструкторы компонентов. Приложение использует
// DefaultConfig, тесты подставляют свои значения.
type Config struct {
	// AmountAbsTolerance — абсолютный допуск (в единицах валюты), внутри
	// которого суммы считаются одним ценовым уровнем.
	AmountAbsTolerance float64
	// AmountRelTolerance — относительный допуск от центра кластера.
	AmountRelTolerance float64

	// MinCadenceDays и MaxCadenceDays ограничивают правдоподобный интервал
	// между списаниями: медиана вне [7, 400] дней отбрасывается как шум.
	MinCadenceDays int
	MaxCadenceDays int
	// MaxRollForwardCycles ограничивает прокрутку предсказанной даты вперёд
	// через пропущенные циклы.
	MaxRollForwardCycles int

	// MinEvidenceConfidence — минимальная уверенность извлечения поля,
	// при которой trial/renewal дата или сумма считаются уликой.
	MinEvidenceConfidence float64

	// MaxReasons ограничивает количество причин в объяснении оценки.
	MaxReasons int
	// MaxEvidenceTxIDs ограничивает количество транзакций-улик в meta.
	MaxEvidenceTxIDs int

	// Границы окна активности: подписка без списаний дольше окна
	// считается отменённой.
	MinActiveWindowDays     int
	MaxActiveWindowDays     int
	DefaultActiveWindowDays int
}

// DefaultConfig возвращает пороги по умолчанию.
func DefaultConfig() Config {
	return Config{
		AmountAbsTolerance:      1.0,
		AmountRelTolerance:      0.05,
		MinCadenceDays:          7,
		MaxCadenceDays:          400,
		MaxRollForwardCycles:    24,
		MinEvidenceConfidence:   0.5,
		MaxReasons:              8,
		MaxEvidenceTxIDs:        8,
		MinActiveWindowDays:     45,
		MaxActiveWindowDays:     730,
		DefaultActiveWindowDays: 60,
	}
}
