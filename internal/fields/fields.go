// Package fields содержит нормализацию "сырых" полей табличного хранилища.
// Имена полей в базе не фиксированы (одно и то же логическое поле может
// называться по-разному), а lookup/rollup-поля приходят массивами, поэтому
// все чтения идут через упорядоченные списки кандидатов.
package fields

import (
	"strconv"
	"strings"
	"time"
)

// Record — сырой набор полей одной записи. Значения: string, float64, bool
// или массивы этих типов (так их отдаёт JSON-декодер).
type Record map[string]any

// Value перебирает имена-кандидаты по порядку и возвращает первое
// присутствующее значение, отличное от nil. Массив разворачивается в свой
// первый элемент. Если ничего не нашлось — def.
func (r Record) Value(names []string, def any) any {
	for _, name := range names {
		v, ok := r[name]
		if !ok || v == nil {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			if len(arr) == 0 || arr[0] == nil {
				continue
			}
			return arr[0]
		}
		return v
	}
	return def
}

// Text — как Value, но пустая строка считается отсутствующим значением,
// а результат приводится к строке.
func (r Record) Text(names []string, def string) string {
	for _, name := range names {
		v, ok := r[name]
		if !ok || v == nil {
			continue
		}
		s := AsString(v)
		if s != "" {
			return s
		}
	}
	return def
}

// Int — как Value с приведением к int (строки и float64 допустимы).
func (r Record) Int(names []string, def int) int {
	v := r.Value(names, nil)
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return def
}

// AsString приводит значение к строке; у массива берётся первый элемент
// с непустым содержимым.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case []any:
		for _, item := range s {
			if out := AsString(item); out != "" {
				return out
			}
		}
		return ""
	default:
		return ""
	}
}

// Truthy — значение чекбокса: bool true, строка "true" либо массив, где
// хотя бы один элемент истинный (lookup-обёртка).
func Truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	case []any:
		for _, item := range b {
			if Truthy(item) {
				return true
			}
		}
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseDate пытается разобрать дату из значения поля. Непарсящаяся строка
// эквивалентна отсутствию данных. Массив разворачивается в первый элемент.
func ParseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return d, true
	case []any:
		if len(d) == 0 {
			return time.Time{}, false
		}
		return ParseDate(d[0])
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Route — разобранное поле "Origin/Destination".
type Route struct {
	Origin      string
	Destination string
	Combined    string
}

// ParseRoute нормализует маршрутную строку: разделители "-", "->" и "→"
// приводятся к "→". Если после разбиения есть ровно две непустые части,
// они склеиваются обратно как "{origin} → {destination}"; иначе вся строка
// целиком уходит в Combined.
func ParseRoute(raw string) Route {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Route{}
	}

	normalized := strings.ReplaceAll(trimmed, "->", "→")
	normalized = strings.ReplaceAll(normalized, "-", "→")

	if !strings.Contains(normalized, "→") {
		return Route{Combined: trimmed}
	}

	parts := strings.SplitN(normalized, "→", 2)
	origin := strings.TrimSpace(parts[0])
	destination := ""
	if len(parts) > 1 {
		destination = strings.TrimSpace(parts[1])
	}

	combined := strings.TrimSpace(normalized)
	if origin != "" && destination != "" {
		combined = origin + " → " + destination
	}
	return Route{Origin: origin, Destination: destination, Combined: combined}
}
