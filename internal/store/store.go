// Package store описывает контракт табличного хранилища записей о грузах.
// Реализации: airtablehttp (REST API Airtable) и pgshipments (Postgres с
// сырым набором полей в JSONB).
package store

import (
	"context"

	"github.com/BearBump/ShipTrace/internal/fields"
)

// Record — одна запись хранилища: непрозрачный id плюс сырой набор полей.
type Record struct {
	ID     string
	Fields fields.Record
}

// KeyFieldPairs — кандидатные пары (поле заказа, поле трек-номера),
// перебираемые по порядку при поиске записи. В базах встречаются все эти
// написания; промах по паре — не ошибка, пробуем следующую.
var KeyFieldPairs = [][2]string{
	{"Job No.", "Tracking No."},
	{"Job No", "Tracking No"},
	{"JobNo", "TrackingNo"},
	{"Order No", "Tracking No"},
	{"OrderNo", "TrackingNo"},
	{"job_no", "tracking_no"},
	{"jobNo", "trackingNo"},
	{"Job Number", "Tracking Number"},
	{"Job Number", "Tracking No"},
}

// SortFieldCandidates — варианты имени поля сортировки для списка,
// перебираются, пока какой-то не сработает.
var SortFieldCandidates = []string{
	"Last Update",
	"LastUpdate",
	"Updated",
	"Updated At",
	"Lastest Update",
	"Modified Time",
	"Created Time",
}

// ListOptions — параметры списочной выборки.
type ListOptions struct {
	MaxRecords    int
	SortField     string
	SortDirection string // "asc" | "desc"
}

// RecordStore — минимальный контракт хранилища.
//
// FindByKeys возвращает (nil, nil), когда все пары ключевых полей перебраны
// и совпадений нет: "не найдено" — штатный исход, ошибкой считается только
// недоступность хранилища. Сравнение значений регистронезависимое
// (верхний регистр с обеих сторон). На попытку берётся не больше одной
// записи, из нескольких совпадений используется первая.
type RecordStore interface {
	FindByKeys(ctx context.Context, orderNo, trackingNo string) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	UpdateFields(ctx context.Context, recordID string, fieldValues map[string]any) (*Record, error)
}
