// Package vendorkey каноникализирует сырые строки продавцов, чтобы
// повторяющиеся списания одного сервиса группировались под одним ключом.
//
// Normalize детерминированна, не возвращает ошибок и идемпотентна:
// Normalize(Normalize(x)) == Normalize(x). Нормализация сознательно
// консервативна, чтобы не склеивать разных продавцов.
package vendorkey

import "strings"

// Токены, не несущие информации о продавце.
var noiseTokens = map[string]struct{}{
	"payment": {}, "payments": {}, "purchase": {}, "purchases": {},
	"receipt": {}, "invoice": {}, "order": {}, "confirm": {},
	"confirmation": {}, "subscription": {}, "subs": {}, "billing": {},
	"bill": {}, "charges": {},
}

const separators = "•·|/\\,;—-_:()[]{}*"

// maxTokens ограничивает длину ключа, чтобы длинные хвосты писем
// не порождали уникальные ключи для одного продавца.
const maxTokens = 6

// Normalize приводит строку продавца к ключу группировки: нижний регистр,
// разделители заменяются пробелами, шумовые токены и хвостовые цифры
// (обычно суффикс карты) отбрасываются, остаются первые шесть токенов.
// Если после очистки не осталось ни одного токена, возвращается пустая
// строка: такие группы пересчёт пропускает.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(separators, r) {
			return ' '
		}
		return r
	}, s)

	parts := make([]string, 0, maxTokens)
	for _, p := range strings.Fields(s) {
		if _, ok := noiseTokens[p]; ok {
			continue
		}
		parts = append(parts, p)
	}

	for len(parts) > 0 && isAllDigits(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}

	if len(parts) > maxTokens {
		parts = parts[:maxTokens]
	}
	return strings.Join(parts, " ")
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
