package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BearBump/ShipTrace/internal/broker/messages"
	"github.com/BearBump/ShipTrace/internal/cache"
	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/models"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/BearBump/ShipTrace/internal/timeline"
	"github.com/pkg/errors"
)

// Сентинели для маппинга на HTTP-статусы в API-слое.
var (
	// ErrNotFound — валидный запрос, но записи нет. Не ретраится.
	ErrNotFound = errors.New("shipment not found")
	// ErrTimeout — хранилище не ответило за отведённый дедлайн.
	ErrTimeout = errors.New("store query timed out")
)

type Store interface {
	FindByKeys(ctx context.Context, orderNo, trackingNo string) (*store.Record, error)
	List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error)
	UpdateFields(ctx context.Context, recordID string, fieldValues map[string]any) (*store.Record, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	store    Store
	cache    cache.BytesCache
	cacheTTL time.Duration

	producer Producer
	topic    string

	queryTimeout time.Duration
	now          func() time.Time
}

func New(st Store, c cache.BytesCache, cacheTTL time.Duration) *Service {
	return &Service{
		store:        st,
		cache:        c,
		cacheTTL:     cacheTTL,
		queryTimeout: 7 * time.Second,
		now:          time.Now,
	}
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

func (s *Service) WithQueryTimeout(d time.Duration) *Service {
	if d > 0 {
		s.queryTimeout = d
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Track — основная операция: поиск записи по паре бизнес-ключей и сборка
// ответа с таймлайном. Ключи матчатся без учёта регистра.
func (s *Service) Track(ctx context.Context, orderNo, trackingNo string) (*models.Shipment, error) {
	if strings.TrimSpace(orderNo) == "" {
		return nil, errors.New("orderNo is required")
	}
	if strings.TrimSpace(trackingNo) == "" {
		return nil, errors.New("trackingNo is required")
	}

	key := trackKey(orderNo, trackingNo)
	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rec, err := s.store.FindByKeys(qctx, orderNo, trackingNo)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || qctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(ErrTimeout, err.Error())
		}
		return nil, errors.Wrap(err, "find shipment")
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	sh := s.buildShipment(rec, orderNo, trackingNo)

	if s.cache != nil && s.cacheTTL > 0 {
		if b, err := json.Marshal(sh); err == nil {
			_ = s.cache.Set(ctx, key, b, s.cacheTTL)
		}
	}
	return sh, nil
}

// Поля со статусной сводкой, которые позволяют не гонять Derive на каждую
// строку списка.
var directStatusFields = []string{
	"Latest Status",
	"Current Step",
	"Timeline Status",
	"Latest Timeline Title",
	"Status Title",
	"Current Status Title",
}

// List возвращает сводки по всем грузам (с потолком на число записей).
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]*models.ShipmentSummary, error) {
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	recs, err := s.store.List(qctx, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || qctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(ErrTimeout, err.Error())
		}
		return nil, errors.Wrap(err, "list shipments")
	}

	out := make([]*models.ShipmentSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.buildSummary(rec))
	}
	return out, nil
}

// Написания полей чекбоксов; для записи используется первое.
var checkboxFieldNames = map[string][]string{
	"02": {"02", "checkbox_02", "Checkbox 02"},
	"03": {"03", "checkbox_03", "Checkbox 03"},
	"04": {"04", "checkbox_04", "Checkbox 04"},
	"05": {"05", "checkbox_05", "Checkbox 05"},
	"06": {"06", "checkbox_06", "Checkbox 06"},
	"07": {"07", "checkbox_07", "Checkbox 07"},
}

// UpdateCheckboxes — единственная пишущая операция: идемпотентная запись
// чекбоксов по id записи. После записи публикуется shipment.updated, по
// которому API-процесс сбрасывает кэш.
func (s *Service) UpdateCheckboxes(ctx context.Context, recordID string, updates map[string]bool) (*models.CheckboxUpdateResult, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, errors.New("recordId is required")
	}
	if updates == nil {
		return nil, errors.New("checkboxUpdates object is required")
	}

	fieldValues := make(map[string]any, len(updates))
	for key, val := range updates {
		names, ok := checkboxFieldNames[key]
		if !ok {
			names = []string{key}
		}
		fieldValues[names[0]] = val
	}

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rec, err := s.store.UpdateFields(qctx, recordID, fieldValues)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || qctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(ErrTimeout, err.Error())
		}
		return nil, errors.Wrap(err, "update checkboxes")
	}

	s.publishUpdated(ctx, rec)

	return &models.CheckboxUpdateResult{ID: rec.ID, Fields: rec.Fields}, nil
}

// Invalidate сбрасывает закэшированный ответ для пары ключей
// (вызывается из kafka-обработчика shipment.updated).
func (s *Service) Invalidate(ctx context.Context, orderNo, trackingNo string) error {
	if s.cache == nil || orderNo == "" || trackingNo == "" {
		return nil
	}
	return s.cache.Del(ctx, trackKey(orderNo, trackingNo))
}

func (s *Service) publishUpdated(ctx context.Context, rec *store.Record) {
	if s.producer == nil || s.topic == "" {
		return
	}
	msg := messages.ShipmentUpdated{
		RecordID:   rec.ID,
		OrderNo:    rec.Fields.Text([]string{"Job No.", "Job No", "Order No", "JobNo"}, ""),
		TrackingNo: rec.Fields.Text([]string{"Tracking No.", "Tracking No", "TrackingNo"}, ""),
		UpdatedAt:  s.now().UTC(),
	}
	b, _ := json.Marshal(msg)
	if err := s.producer.Publish(ctx, s.topic, []byte(rec.ID), b); err != nil {
		// Запись в хранилище уже прошла, ответ клиенту важнее доставки
		// события: кэш доживёт до TTL.
		slog.Warn("publish shipment.updated failed", "record_id", rec.ID, "err", err)
	}
}

func (s *Service) buildShipment(rec *store.Record, orderNo, trackingNo string) *models.Shipment {
	f := rec.Fields

	route := fieldsRoute(f)
	origin := route.Origin
	if origin == "" {
		origin = f.Text([]string{"Origin", "origin"}, "")
	}
	destination := route.Destination
	if destination == "" {
		destination = f.Text([]string{"Destination", "destination"}, "")
	}

	transportRaw := f.Text([]string{"Transport Type", "TransportType", "transportType"}, "")
	entries := timeline.Derive(f, models.ParseTransportType(transportRaw), s.now())

	return &models.Shipment{
		ID:            rec.ID,
		OrderNo:       f.Text([]string{"Job No.", "Job No", "Order No", "JobNo"}, orderNo),
		TrackingNo:    f.Text([]string{"Tracking No.", "Tracking No", "TrackingNo"}, trackingNo),
		Status:        f.Text([]string{"Status", "status"}, "pending"),
		Origin:        origin,
		Destination:   destination,
		PackageCount:  f.Int([]string{"Package Count", "PackageCount", "Packages"}, 1),
		Weight:        formatWeight(f.Text([]string{"Weight(KG)", "Weight (KG)", "Weight", "weight"}, "")),
		ETA:           f.Text([]string{"ETA", "eta", "Estimated Arrival"}, ""),
		InvoiceNo:     f.Text([]string{"Invoice No.", "Invoice No", "InvoiceNo", "Invoice"}, ""),
		MAWB:          f.Text([]string{"MAWB", "mawb"}, ""),
		LastUpdate:    f.Text([]string{"Lastest Update", "Last Update", "LastUpdate", "Updated", "Updated At"}, ""),
		TransportType: transportRaw,
		Timeline:      entries,
	}
}

func (s *Service) buildSummary(rec *store.Record) *models.ShipmentSummary {
	f := rec.Fields

	transportRaw := f.Text([]string{"Transport Type", "TransportType", "transportType"}, "")

	latest := f.Text(directStatusFields, "")
	if latest == "" {
		entries := timeline.Derive(f, models.ParseTransportType(transportRaw), s.now())
		latest = timeline.LatestTitle(entries)
	}

	checkboxes := make(map[string]bool, len(checkboxFieldNames))
	for key, names := range checkboxFieldNames {
		checkboxes[key] = fields.Truthy(rec.Fields.Value(names, nil))
	}

	return &models.ShipmentSummary{
		ID:                  rec.ID,
		OrderNo:             f.Text([]string{"Job No.", "Job No", "JobNo", "Order No", "OrderNo", "job_no", "jobNo"}, ""),
		TrackingNo:          f.Text([]string{"Tracking No.", "Tracking No", "TrackingNo", "tracking_no", "trackingNo"}, ""),
		Status:              f.Text([]string{"Status", "status"}, ""),
		LatestTimelineTitle: latest,
		OriginDestination:   fieldsRoute(f).Combined,
		PackageCount:        fields.AsString(f.Value([]string{"Package Count", "PackageCount", "Packages", "package_count"}, nil)),
		Weight:              formatWeight(f.Text([]string{"Weight(KG)", "Weight (KG)", "Weight", "weight"}, "")),
		ETA:                 f.Text([]string{"ETA", "eta", "Estimated Arrival", "estimated_arrival"}, ""),
		InvoiceNo:           f.Text([]string{"Invoice No", "InvoiceNo", "Invoice", "invoice_no"}, ""),
		LastUpdate:          f.Text([]string{"Last Update", "LastUpdate", "Updated", "Updated At", "Lastest Update"}, ""),
		TransportType:       transportRaw,
		CheckboxFields:      checkboxes,
	}
}

func fieldsRoute(f fields.Record) fields.Route {
	raw := f.Text([]string{"Origin/Destination", "Origin Destination", "Route", "origin_destination"}, "")
	return fields.ParseRoute(raw)
}

var weightNumeric = regexp.MustCompile(`[\d.]+`)

// formatWeight приводит вес к виду "N KG"; значение с уже указанной
// единицей не трогаем.
func formatWeight(raw string) string {
	w := strings.TrimSpace(raw)
	if w == "" {
		return ""
	}
	if strings.Contains(strings.ToUpper(w), "KG") {
		return w
	}
	if m := weightNumeric.FindString(w); m != "" {
		return m + " KG"
	}
	return w
}

func trackKey(orderNo, trackingNo string) string {
	return fmt.Sprintf("shipment:%s|%s:response",
		strings.ToUpper(strings.TrimSpace(orderNo)),
		strings.ToUpper(strings.TrimSpace(trackingNo)))
}
