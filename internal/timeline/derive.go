// Package timeline выводит таймлайн доставки из плоского набора датных
// полей записи и чекбоксов событий. Это единственное место, где считается
// статус шагов: и карточка груза, и списочная сводка берут результат отсюда.
package timeline

import (
	"time"

	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/models"
)

// Поля записи, из которых берётся время "отметки" события, когда у самого
// чекбокса нет датного значения и нет парного поля "<имя> Date".
var lastModifiedFields = []string{
	"Last Modified Time",
	"Lastest Update",
	"Last Update",
	"Updated At",
}

// Derive строит упорядоченный таймлайн по шаблону транспорта.
//
// Правила статусов (один проход по обычным шагам в порядке шаблона):
//   - шаг с валидной датой — completed;
//   - первый шаг без даты сразу после последнего завершённого — processing
//     (позиции событий при проверке соседства прозрачны);
//   - всё после processing принудительно pending, даже если в поле есть дата
//     (считаем её внесённой не по порядку);
//   - если даты есть у всех шагов включая "Shipment Delivered", заказ
//     завершён: все шаги completed + isOrderCompleted.
//
// События добавляются отдельным проходом после того, как статусы шагов
// зафиксированы: событию нужен чекбокс и completed-статус шага-предпосылки.
// now нужен только как последний фолбэк даты события.
func Derive(rec fields.Record, transport models.TransportType, now time.Time) []models.TimelineEntry {
	tmpl := TemplateFor(transport)

	// Проход 1: последний шаг с валидной датой.
	lastCompleted := -1
	for i, def := range tmpl {
		if def.IsEvent {
			continue
		}
		if _, ok := fields.ParseDate(rec[def.Field()]); ok {
			lastCompleted = i
		}
	}

	// Проход 2: статусы шагов.
	processingIdx := -1
	statusByIdx := make(map[int]string, len(tmpl))
	for i, def := range tmpl {
		if def.IsEvent {
			continue
		}
		_, hasDate := fields.ParseDate(rec[def.Field()])

		status := models.StepStatusPending
		if hasDate {
			status = models.StepStatusCompleted
			if processingIdx < 0 || i < processingIdx {
				lastCompleted = i
			}
		} else if processingIdx < 0 && isNextStep(tmpl, lastCompleted, i) {
			status = models.StepStatusProcessing
			processingIdx = i
		}

		// Всё, что позади processing-шага, не могло произойти.
		if processingIdx >= 0 && i > processingIdx {
			status = models.StepStatusPending
		}
		statusByIdx[i] = status
	}

	// Проход 3: сборка узлов, события поверх готовых статусов.
	entries := make([]models.TimelineEntry, 0, len(tmpl))
	stepNo := 0
	for i, def := range tmpl {
		if def.IsEvent {
			if entry, ok := buildEvent(rec, tmpl, def, statusByIdx, now); ok {
				entries = append(entries, entry)
			}
			continue
		}

		entry := models.TimelineEntry{
			Title:  def.Title,
			Status: statusByIdx[i],
		}
		// Дату показываем, как только она есть и парсится, даже если статус
		// шага принудительно pending.
		if t, ok := fields.ParseDate(rec[def.Field()]); ok {
			entry.Date = FormatDate(t)
			entry.Time = FormatTime(t)
		}
		stepNo++
		n := stepNo
		entry.Step = &n
		entries = append(entries, entry)
	}

	if orderCompleted(rec, tmpl) {
		for i := range entries {
			if entries[i].IsEvent {
				continue
			}
			entries[i].Status = models.StepStatusCompleted
			entries[i].IsOrderCompleted = true
		}
	}

	return entries
}

// isNextStep — является ли шаг idx первым обычным шагом после lastCompleted.
// Позиции событий между ними не считаются. lastCompleted = -1 означает, что
// завершённых шагов нет и кандидатом считается самый первый обычный шаг.
func isNextStep(tmpl []StepDef, lastCompleted, idx int) bool {
	for i := lastCompleted + 1; i < idx; i++ {
		if !tmpl[i].IsEvent {
			return false
		}
	}
	return true
}

func buildEvent(rec fields.Record, tmpl []StepDef, def StepDef, statusByIdx map[int]string, now time.Time) (models.TimelineEntry, bool) {
	raw := rec[def.Field()]
	if !fields.Truthy(raw) {
		return models.TimelineEntry{}, false
	}

	if def.Prereq != "" {
		met := false
		for i, d := range tmpl {
			if d.IsEvent || (d.Title != def.Prereq && d.FieldName != def.Prereq) {
				continue
			}
			met = statusByIdx[i] == models.StepStatusCompleted
			break
		}
		if !met {
			return models.TimelineEntry{}, false
		}
	}

	// Дата события: значение чекбокса, если оно датоподобное; иначе парное
	// поле "<имя> Date"; иначе время последнего изменения записи; иначе now.
	// Включённое событие всегда получает какую-то дату.
	t, ok := fields.ParseDate(raw)
	if !ok {
		t, ok = fields.ParseDate(rec[def.Field()+" Date"])
	}
	if !ok {
		for _, name := range lastModifiedFields {
			if t, ok = fields.ParseDate(rec[name]); ok {
				break
			}
		}
	}
	if !ok {
		t = now
	}

	return models.TimelineEntry{
		Title:     def.Title,
		Date:      FormatDate(t),
		Time:      FormatTime(t),
		Status:    models.StepStatusCompleted,
		IsEvent:   true,
		EventType: "dryice",
	}, true
}

// orderCompleted: у всех обычных шагов есть валидные даты и у последнего
// "Shipment Delivered" тоже.
func orderCompleted(rec fields.Record, tmpl []StepDef) bool {
	deliveredHasData := false
	for _, def := range tmpl {
		if def.IsEvent {
			continue
		}
		_, ok := fields.ParseDate(rec[def.Field()])
		if !ok {
			return false
		}
		if def.Title == "Shipment Delivered" {
			deliveredHasData = true
		}
	}
	return deliveredHasData
}

// LatestTitle — заголовок последнего обычного шага, у которого проставлена
// дата (для списочной сводки). Пустая строка, если таких нет.
func LatestTitle(entries []models.TimelineEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsEvent && (e.Time != "" || e.Date != "") {
			return e.Title
		}
	}
	return ""
}
