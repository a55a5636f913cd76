// Package airtablehttp — клиент REST API Airtable, реализующий
// store.RecordStore. Airtable непредсказуем в именовании полей, поэтому
// поиск записи перебирает пары ключевых полей; формула с несуществующим
// полем даёт 422 — это ожидаемый промах, а не ошибка.
package airtablehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipTrace/internal/fields"
	"github.com/BearBump/ShipTrace/internal/store"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	baseID  string
	table   string
	httpc   *http.Client
}

func New(baseURL, apiKey, baseID, table string) *Client {
	if baseURL == "" {
		baseURL = "https://api.airtable.com"
	}
	if table == "" {
		table = "Shipments"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		baseID:  baseID,
		table:   table,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type airtableRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
}

type airtableError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) FindByKeys(ctx context.Context, orderNo, trackingNo string) (*store.Record, error) {
	orderVal := strings.ToUpper(strings.TrimSpace(orderNo))
	trackVal := strings.ToUpper(strings.TrimSpace(trackingNo))

	var lastErr error
	queried := false
	for _, pair := range store.KeyFieldPairs {
		formula := fmt.Sprintf(`AND(UPPER({%s}) = "%s", UPPER({%s}) = "%s")`,
			pair[0], escapeFormulaValue(orderVal), pair[1], escapeFormulaValue(trackVal))

		q := url.Values{}
		q.Set("filterByFormula", formula)
		q.Set("maxRecords", "1")

		recs, err := c.list(ctx, q)
		if err != nil {
			if isUnknownField(err) {
				// Поля с таким именем в базе нет — пробуем следующую пару.
				continue
			}
			slog.Warn("airtable probe failed", "fields", pair, "err", err)
			lastErr = err
			continue
		}
		queried = true
		if len(recs) > 0 {
			return toRecord(recs[0]), nil
		}
	}

	if !queried && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (c *Client) List(ctx context.Context, opts store.ListOptions) ([]*store.Record, error) {
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = 100
	}
	direction := opts.SortDirection
	if direction != "asc" {
		direction = "desc"
	}

	candidates := store.SortFieldCandidates
	if opts.SortField != "" {
		candidates = append([]string{opts.SortField}, candidates...)
	}

	// Ищем существующее поле сортировки пробным запросом на одну запись.
	sortField := ""
	for _, name := range candidates {
		q := url.Values{}
		q.Set("maxRecords", "1")
		q.Set("sort[0][field]", name)
		q.Set("sort[0][direction]", direction)
		if _, err := c.list(ctx, q); err == nil {
			sortField = name
			break
		}
	}

	q := url.Values{}
	q.Set("maxRecords", strconv.Itoa(maxRecords))
	if sortField != "" {
		q.Set("sort[0][field]", sortField)
		q.Set("sort[0][direction]", direction)
	}

	recs, err := c.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecord(r))
	}
	return out, nil
}

func (c *Client) UpdateFields(ctx context.Context, recordID string, fieldValues map[string]any) (*store.Record, error) {
	body, err := json.Marshal(map[string]any{"fields": fieldValues})
	if err != nil {
		return nil, errors.Wrap(err, "marshal update")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.recordURL(recordID), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, decodeError(resp)
	}

	var rec airtableRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return toRecord(rec), nil
}

func (c *Client) list(ctx context.Context, q url.Values) ([]airtableRecord, error) {
	u := c.tableURL() + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, decodeError(resp)
	}

	var out airtableList
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return out.Records, nil
}

func (c *Client) tableURL() string {
	return fmt.Sprintf("%s/v0/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(c.table))
}

func (c *Client) recordURL(recordID string) string {
	return c.tableURL() + "/" + url.PathEscape(recordID)
}

func toRecord(r airtableRecord) *store.Record {
	f := r.Fields
	if f == nil {
		f = map[string]any{}
	}
	return &store.Record{ID: r.ID, Fields: fields.Record(f)}
}

type apiError struct {
	status  int
	errType string
	message string
}

func (e *apiError) Error() string {
	if e.errType != "" {
		return fmt.Sprintf("airtable http %d: %s (%s)", e.status, e.message, e.errType)
	}
	return fmt.Sprintf("airtable http %d", e.status)
}

func decodeError(resp *http.Response) error {
	out := &apiError{status: resp.StatusCode}
	var body airtableError
	if json.NewDecoder(resp.Body).Decode(&body) == nil {
		out.errType = body.Error.Type
		out.message = body.Error.Message
	}
	return out
}

// isUnknownField: 422 с INVALID_FILTER_BY_FORMULA / UNKNOWN_FIELD_NAME —
// формула сослалась на несуществующее поле.
func isUnknownField(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.status != http.StatusUnprocessableEntity {
		return false
	}
	switch ae.errType {
	case "INVALID_FILTER_BY_FORMULA", "UNKNOWN_FIELD_NAME", "INVALID_SORT_PARAM":
		return true
	}
	return ae.errType == ""
}

// Кавычки внутри строкового литерала формулы Airtable экранируются
// обратным слэшем.
func escapeFormulaValue(v string) string {
	return strings.ReplaceAll(v, `"`, `\"`)
}
