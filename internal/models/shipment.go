package models

import "strings"

// Статусы узлов таймлайна (фиксированный набор).
const (
	StepStatusCompleted  = "completed"
	StepStatusProcessing = "processing"
	StepStatusPending    = "pending"
)

// TransportType — классификация перевозки из поля записи.
// Domestic — свой шаблон таймлайна, всё остальное считаем международным.
type TransportType string

const (
	TransportDomestic      TransportType = "domestic"
	TransportInternational TransportType = "international"
)

// ParseTransportType нормализует сырое значение поля Transport Type.
// "domestic" (без учёта регистра) — внутренняя перевозка; import/export/
// cross/imex — международная; пустое или неизвестное значение тоже
// международная (более общий шаблон).
func ParseTransportType(raw string) TransportType {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "domestic" {
		return TransportDomestic
	}
	for _, kw := range []string{"import", "export", "cross", "imex"} {
		if strings.Contains(v, kw) {
			return TransportInternational
		}
	}
	return TransportInternational
}

// TimelineEntry — один узел таймлайна в ответе API. Порядок узлов задаётся
// шаблоном, а не датами. Step проставляется только обычным шагам (1..N),
// у событий он nil.
type TimelineEntry struct {
	Step             *int   `json:"step"`
	Title            string `json:"title"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Status           string `json:"status"`
	IsEvent          bool   `json:"isEvent"`
	EventType        string `json:"eventType,omitempty"`
	IsOrderCompleted bool   `json:"isOrderCompleted"`
}

// Shipment — нормализованная запись о грузе плюс готовый таймлайн.
type Shipment struct {
	ID            string          `json:"id"`
	OrderNo       string          `json:"orderNo"`
	TrackingNo    string          `json:"trackingNo"`
	Status        string          `json:"status"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	PackageCount  int             `json:"packageCount"`
	Weight        string          `json:"weight"`
	ETA           string          `json:"eta"`
	InvoiceNo     string          `json:"invoiceNo"`
	MAWB          string          `json:"mawb"`
	LastUpdate    string          `json:"lastUpdate"`
	TransportType string          `json:"transportType"`
	Timeline      []TimelineEntry `json:"timeline"`
}

// ShipmentSummary — строка списка /api/list. Таймлайн целиком не включаем,
// только заголовок последнего достигнутого шага.
type ShipmentSummary struct {
	ID                  string          `json:"id"`
	OrderNo             string          `json:"orderNo"`
	TrackingNo          string          `json:"trackingNo"`
	Status              string          `json:"status"`
	LatestTimelineTitle string          `json:"latestTimelineTitle"`
	OriginDestination   string          `json:"originDestination"`
	PackageCount        string          `json:"packageCount"`
	Weight              string          `json:"weight"`
	ETA                 string          `json:"eta"`
	InvoiceNo           string          `json:"invoiceNo"`
	LastUpdate          string          `json:"lastUpdate"`
	TransportType       string          `json:"transportType"`
	CheckboxFields      map[string]bool `json:"checkboxFields"`
}

// CheckboxUpdateResult — результат записи чекбоксов: id записи и её
// актуальный набор полей.
type CheckboxUpdateResult struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
