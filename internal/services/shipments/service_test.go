package shipments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ShipTrace/internal/broker/messages"
	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/models"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	findOrderNo    string
	findTrackingNo string
	findOut        *store.Record
	findErr        error

	listOpts store.ListOptions
	listOut  []*store.Record
	listErr  error

	updateID     string
	updateFields map[string]any
	updateOut    *store.Record
	updateErr    error
}

func (f *fakeStore) FindByKeys(ctx context.Context, orderNo, trackingNo string) (*store.Record, error) {
	f.findOrderNo = orderNo
	f.findTrackingNo = trackingNo
	return f.findOut, f.findErr
}
func (f *fakeStore) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	f.listOpts = opts
	return f.listOut, f.listErr
}
func (f *fakeStore) UpdateFields(ctx context.Context, recordID string, fieldValues map[string]any) (*store.Record, error) {
	f.updateID = recordID
	f.updateFields = fieldValues
	return f.updateOut, f.updateErr
}

type fakeCache struct {
	m       map[string][]byte
	deleted []string
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.m, key)
	return nil
}

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	err   error
	calls int
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic = topic
	p.key = key
	p.value = value
	return p.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(st *fakeStore, c *fakeCache) *Service {
	if c == nil {
		return New(st, nil, 0).WithClock(func() time.Time { return testNow })
	}
	return New(st, c, 10*time.Minute).WithClock(func() time.Time { return testNow })
}

func TestService_Track_validate(t *testing.T) {
	s := newTestService(&fakeStore{}, nil)

	_, err := s.Track(context.Background(), "", "TRK1")
	require.Error(t, err)
	_, err = s.Track(context.Background(), "ORD1", "  ")
	require.Error(t, err)
}

func TestService_Track_found(t *testing.T) {
	st := &fakeStore{findOut: &store.Record{
		ID: "rec1",
		Fields: fields.Record{
			"Job No.":            "ORD1",
			"Tracking No.":       "TRK1",
			"Status":             "in transit",
			"Transport Type":     "Domestic",
			"Origin/Destination": "Shenzhen - Osaka",
			"Weight(KG)":         "12.5",
			"Order Created":      "2025-05-01",
			"Shipment Collected": "2025-05-02",
		},
	}}
	s := newTestService(st, nil)

	sh, err := s.Track(context.Background(), "ord1", "trk1")
	require.NoError(t, err)
	require.Equal(t, "rec1", sh.ID)
	require.Equal(t, "ORD1", sh.OrderNo)
	require.Equal(t, "TRK1", sh.TrackingNo)
	require.Equal(t, "Shenzhen", sh.Origin)
	require.Equal(t, "Osaka", sh.Destination)
	require.Equal(t, "12.5 KG", sh.Weight)
	require.Equal(t, "Domestic", sh.TransportType)
	require.Len(t, sh.Timeline, 4)
	require.Equal(t, models.StepStatusCompleted, sh.Timeline[0].Status)
	require.Equal(t, models.StepStatusProcessing, sh.Timeline[2].Status)
}

func TestService_Track_notFound(t *testing.T) {
	s := newTestService(&fakeStore{findOut: nil}, nil)
	_, err := s.Track(context.Background(), "ORD1", "TRK1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Track_timeout(t *testing.T) {
	s := newTestService(&fakeStore{findErr: context.DeadlineExceeded}, nil)
	_, err := s.Track(context.Background(), "ORD1", "TRK1")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestService_Track_storeError(t *testing.T) {
	want := errors.New("store down")
	s := newTestService(&fakeStore{findErr: want}, nil)
	_, err := s.Track(context.Background(), "ORD1", "TRK1")
	require.ErrorIs(t, err, want)
	require.NotErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestService_Track_cacheHit(t *testing.T) {
	st := &fakeStore{}
	c := &fakeCache{m: map[string][]byte{}}
	s := newTestService(st, c)

	want := &models.Shipment{ID: "cached", OrderNo: "ORD1", TrackingNo: "TRK1"}
	b, _ := json.Marshal(want)
	c.m["shipment:ORD1|TRK1:response"] = b

	sh, err := s.Track(context.Background(), "ord1", "trk1")
	require.NoError(t, err)
	require.Equal(t, "cached", sh.ID)
	require.Empty(t, st.findOrderNo) // до хранилища не дошли
}

func TestService_Track_cacheMissStoresResponse(t *testing.T) {
	st := &fakeStore{findOut: &store.Record{ID: "rec1", Fields: fields.Record{}}}
	c := &fakeCache{m: map[string][]byte{}}
	s := newTestService(st, c)

	_, err := s.Track(context.Background(), "ORD1", "TRK1")
	require.NoError(t, err)
	require.Contains(t, c.m, "shipment:ORD1|TRK1:response")
}

func TestService_List_directStatusSkipsDerive(t *testing.T) {
	st := &fakeStore{listOut: []*store.Record{
		{ID: "r1", Fields: fields.Record{
			"Job No.":       "ORD1",
			"Latest Status": "In Transit",
		}},
		{ID: "r2", Fields: fields.Record{
			"Job No.":            "ORD2",
			"Transport Type":     "Domestic",
			"Order Created":      "2025-05-01",
			"Shipment Collected": "2025-05-02",
		}},
	}}
	s := newTestService(st, nil)

	out, err := s.List(context.Background(), store.ListOptions{MaxRecords: 50})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 50, st.listOpts.MaxRecords)

	require.Equal(t, "In Transit", out[0].LatestTimelineTitle)
	// без прямого статусного поля заголовок берётся из таймлайна
	require.Equal(t, "Shipment Collected", out[1].LatestTimelineTitle)
}

func TestService_List_checkboxFields(t *testing.T) {
	st := &fakeStore{listOut: []*store.Record{
		{ID: "r1", Fields: fields.Record{
			"02":          true,
			"checkbox_03": "true",
			"04":          []any{true},
			"05":          false,
		}},
	}}
	s := newTestService(st, nil)

	out, err := s.List(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	require.True(t, out[0].CheckboxFields["02"])
	require.True(t, out[0].CheckboxFields["03"])
	require.True(t, out[0].CheckboxFields["04"])
	require.False(t, out[0].CheckboxFields["05"])
	require.False(t, out[0].CheckboxFields["06"])
}

func TestService_UpdateCheckboxes_validate(t *testing.T) {
	s := newTestService(&fakeStore{}, nil)

	_, err := s.UpdateCheckboxes(context.Background(), "", map[string]bool{"02": true})
	require.Error(t, err)
	_, err = s.UpdateCheckboxes(context.Background(), "rec1", nil)
	require.Error(t, err)
}

func TestService_UpdateCheckboxes_firstSpellingAndPublish(t *testing.T) {
	st := &fakeStore{updateOut: &store.Record{
		ID: "rec1",
		Fields: fields.Record{
			"Job No.":      "ORD1",
			"Tracking No.": "TRK1",
			"02":           true,
		},
	}}
	p := &fakeProducer{}
	s := newTestService(st, nil).WithProducer(p, "shipment.updated")

	res, err := s.UpdateCheckboxes(context.Background(), "rec1", map[string]bool{"02": true, "custom": false})
	require.NoError(t, err)
	require.Equal(t, "rec1", res.ID)

	require.Equal(t, "rec1", st.updateID)
	require.Equal(t, map[string]any{"02": true, "custom": false}, st.updateFields)

	require.Equal(t, 1, p.calls)
	require.Equal(t, "shipment.updated", p.topic)
	require.Equal(t, []byte("rec1"), p.key)

	var msg messages.ShipmentUpdated
	require.NoError(t, json.Unmarshal(p.value, &msg))
	require.Equal(t, "rec1", msg.RecordID)
	require.Equal(t, "ORD1", msg.OrderNo)
	require.Equal(t, "TRK1", msg.TrackingNo)
	require.True(t, msg.UpdatedAt.Equal(testNow))
}

func TestService_UpdateCheckboxes_publishErrorIgnored(t *testing.T) {
	st := &fakeStore{updateOut: &store.Record{ID: "rec1", Fields: fields.Record{}}}
	p := &fakeProducer{err: errors.New("kafka down")}
	s := newTestService(st, nil).WithProducer(p, "shipment.updated")

	_, err := s.UpdateCheckboxes(context.Background(), "rec1", map[string]bool{"02": true})
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
}

func TestService_UpdateCheckboxes_emptyObjectIsValid(t *testing.T) {
	st := &fakeStore{updateOut: &store.Record{ID: "rec1", Fields: fields.Record{}}}
	s := newTestService(st, nil)

	res, err := s.UpdateCheckboxes(context.Background(), "rec1", map[string]bool{})
	require.NoError(t, err)
	require.Equal(t, "rec1", res.ID)
	require.Empty(t, st.updateFields)
}

func TestService_Invalidate(t *testing.T) {
	c := &fakeCache{m: map[string][]byte{"shipment:ORD1|TRK1:response": []byte("{}")}}
	s := newTestService(&fakeStore{}, c)

	require.NoError(t, s.Invalidate(context.Background(), "ord1", "trk1"))
	require.Equal(t, []string{"shipment:ORD1|TRK1:response"}, c.deleted)

	// пустые ключи — no-op
	require.NoError(t, s.Invalidate(context.Background(), "", "trk1"))
	require.Len(t, c.deleted, 1)
}

func TestFormatWeight(t *testing.T) {
	require.Equal(t, "", formatWeight(""))
	require.Equal(t, "12.5 KG", formatWeight("12.5"))
	require.Equal(t, "10 KG", formatWeight("10 KG"))
	require.Equal(t, "3kg", formatWeight("3kg"))
	require.Equal(t, "5 KG", formatWeight("approx 5"))
}
