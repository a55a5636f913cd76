package pgshipments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) FindByKeys(ctx context.Context, orderNo, trackingNo string) (*store.Record, error) {
	orderVal := strings.ToUpper(strings.TrimSpace(orderNo))
	trackVal := strings.ToUpper(strings.TrimSpace(trackingNo))

	for _, pair := range store.KeyFieldPairs {
		var id string
		var raw []byte
		err := s.db.QueryRow(ctx, `
SELECT id, fields
FROM shipments
WHERE UPPER(fields->>$1) = $2
  AND UPPER(fields->>$3) = $4
LIMIT 1
`, pair[0], orderVal, pair[1], trackVal).Scan(&id, &raw)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "select shipment")
		}
		return decodeRecord(id, raw)
	}
	return nil, nil
}

func (s *Storage) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 || maxRecords > 1000 {
		maxRecords = 100
	}
	dir := "DESC"
	if opts.SortDirection == "asc" {
		dir = "ASC"
	}

	candidates := store.SortFieldCandidates
	if opts.SortField != "" {
		candidates = append([]string{opts.SortField}, candidates...)
	}

	// Имена полей — значения JSONB-ключей, поэтому их можно передавать
	// параметрами; COALESCE даёт ту же толерантность к написанию, что и
	// перебор полей сортировки в Airtable.
	coalesceArgs := make([]string, 0, len(candidates))
	args := make([]any, 0, len(candidates)+1)
	for i, name := range candidates {
		coalesceArgs = append(coalesceArgs, fmt.Sprintf("fields->>$%d", i+1))
		args = append(args, name)
	}
	args = append(args, maxRecords)

	q := fmt.Sprintf(`
SELECT id, fields
FROM shipments
ORDER BY COALESCE(%s) %s NULLS LAST
LIMIT $%d
`, strings.Join(coalesceArgs, ", "), dir, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	var out []*store.Record
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		rec, err := decodeRecord(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdateFields(ctx context.Context, recordID string, fieldValues map[string]any) (*store.Record, error) {
	patch, err := json.Marshal(fieldValues)
	if err != nil {
		return nil, errors.Wrap(err, "marshal patch")
	}

	var id string
	var raw []byte
	err = s.db.QueryRow(ctx, `
UPDATE shipments
SET fields = fields || $2::jsonb, updated_at = now()
WHERE id = $1
RETURNING id, fields
`, recordID, patch).Scan(&id, &raw)
	if err == pgx.ErrNoRows {
		return nil, errors.Errorf("shipment %s not found", recordID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update shipment")
	}
	return decodeRecord(id, raw)
}

// UpsertShipment кладёт запись с полным набором полей (сидинг и тесты).
func (s *Storage) UpsertShipment(ctx context.Context, recordID string, f fields.Record) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshal fields")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO shipments (id, fields)
VALUES ($1, $2::jsonb)
ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()
`, recordID, raw)
	return errors.Wrap(err, "upsert shipment")
}

func decodeRecord(id string, raw []byte) (*store.Record, error) {
	f := fields.Record{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, errors.Wrap(err, "decode fields")
		}
	}
	return &store.Record{ID: id, Fields: f}, nil
}
