// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и идентификаторов.
package sl

import (
	"log/slog"

	"github.com/google/uuid"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Удобно использовать в логировании для единообразного вывода ошибок.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// UID возвращает slog.Attr с ключом "user_uid" для единообразного
// вывода идентификатора пользователя.
func UID(id uuid.UUID) slog.Attr {
	return slog.Attr{
		Key:   "user_uid",
		Value: slog.StringValue(id.String()),
	}
}
