package timeline

import "time"

// Отображаемые дата/время всегда в фиксированном поясе UTC+8 (часовой пояс
// заказчика). FixedZone вместо LoadLocation, чтобы не зависеть от tzdata.
var displayZone = time.FixedZone("UTC+8", 8*60*60)

// FormatDate — YYYY-MM-DD в поясе отображения.
func FormatDate(t time.Time) string {
	return t.In(displayZone).Format("2006-01-02")
}

// FormatTime — HH:MM (24 часа) в поясе отображения.
func FormatTime(t time.Time) string {
	return t.In(displayZone).Format("15:04")
}
