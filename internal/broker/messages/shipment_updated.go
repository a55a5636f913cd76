package messages

import "time"

// ShipmentUpdated публикуется после записи чекбоксов в хранилище.
// API-процесс по нему сбрасывает закэшированный ответ трекинга.
type ShipmentUpdated struct {
	RecordID   string    `json:"record_id"`
	OrderNo    string    `json:"order_no,omitempty"`
	TrackingNo string    `json:"tracking_no,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
