package timeline

import "github.com/BearBump/ShipTrace/internal/models"

// StepDef — один элемент шаблона таймлайна. FieldName задаётся, когда имя
// поля с датой отличается от заголовка шага; для событий Prereq — заголовок
// шага, который должен быть completed, чтобы событие попало в выдачу.
type StepDef struct {
	Title     string
	FieldName string
	IsEvent   bool
	Prereq    string
}

// Field возвращает имя поля записи, в котором лежит дата шага
// (или значение чекбокса для события).
func (d StepDef) Field() string {
	if d.FieldName != "" {
		return d.FieldName
	}
	return d.Title
}

// Domestic: 4 шага без событий.
var domesticTemplate = []StepDef{
	{Title: "Order Created"},
	{Title: "Shipment Collected"},
	{Title: "In Transit"},
	{Title: "Shipment Delivered"},
}

// Import/Export/Cross: 7 шагов + 2 события сухого льда, порядок фиксирован.
// События вклиниваются после "In Transit" и "Destination Customs Process".
var internationalTemplate = []StepDef{
	{Title: "Order Created"},
	{Title: "Shipment Collected"},
	{Title: "Origin Customs Process"},
	{Title: "In Transit"},
	{Title: "Dry Ice Refilled(Terminal)", FieldName: "Dry Ice Refilled(Terminal)", IsEvent: true, Prereq: "In Transit"},
	{Title: "Destination Customs Process", FieldName: "Destination Customs Process"},
	{Title: "Dry Ice Refilled", FieldName: "Dry Ice Refilled", IsEvent: true, Prereq: "Destination Customs Process"},
	{Title: "Out for Delivery"},
	{Title: "Shipment Delivered"},
}

// TemplateFor выбирает шаблон по типу перевозки.
func TemplateFor(t models.TransportType) []StepDef {
	if t == models.TransportDomestic {
		return domesticTemplate
	}
	return internationalTemplate
}
