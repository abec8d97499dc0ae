// Package sl содержит вспомогательные функции для работы с логгером slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to activate draft", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Correlation атрибуты для сверки платежей вручную: id события, заказа и сессии провайдера.
// Пустые значения пропускаются.
func Correlation(eventID, orderID, sessionID string) slog.Attr {
	attrs := make([]any, 0, 3)
	if eventID != "" {
		attrs = append(attrs, slog.String("event_id", eventID))
	}
	if orderID != "" {
		attrs = append(attrs, slog.String("order_id", orderID))
	}
	if sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	return slog.Group("correlation", attrs...)
}
