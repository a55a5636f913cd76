package pgshipments

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGShipments_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "shiptrace_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/shiptrace_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NoError(t, st.UpsertShipment(ctx, "rec1", fields.Record{
		"Job No.":       "ORD1",
		"Tracking No.":  "TRK1",
		"Status":        "in transit",
		"Last Update":   "2025-05-02",
		"Order Created": "2025-05-01",
	}))
	require.NoError(t, st.UpsertShipment(ctx, "rec2", fields.Record{
		"JobNo":       "ORD2",
		"TrackingNo":  "TRK2",
		"Last Update": "2025-05-03",
	}))

	// Поиск: первая пара ключевых полей
	rec, err := st.FindByKeys(ctx, "ord1", "trk1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "rec1", rec.ID)
	require.Equal(t, "ORD1", rec.Fields["Job No."])

	// Поиск: другая пара написаний для той же логической схемы
	rec, err = st.FindByKeys(ctx, "ORD2", "TRK2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "rec2", rec.ID)

	// Не найдено — (nil, nil), а не ошибка
	rec, err = st.FindByKeys(ctx, "ORDX", "TRKX")
	require.NoError(t, err)
	require.Nil(t, rec)

	// Список отсортирован по "Last Update" по убыванию
	recs, err := st.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "rec2", recs[0].ID)
	require.Equal(t, "rec1", recs[1].ID)

	recs, err = st.List(ctx, store.ListOptions{SortDirection: "asc", MaxRecords: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "rec1", recs[0].ID)

	// Частичный апдейт полей не трогает остальные
	upd, err := st.UpdateFields(ctx, "rec1", map[string]any{"02": true, "Status": "delivered"})
	require.NoError(t, err)
	require.Equal(t, true, upd.Fields["02"])
	require.Equal(t, "delivered", upd.Fields["Status"])
	require.Equal(t, "ORD1", upd.Fields["Job No."])

	_, err = st.UpdateFields(ctx, "missing", map[string]any{"02": true})
	require.Error(t, err)
}
