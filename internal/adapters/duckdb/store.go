// Package duckdb provides the SQL Store backend on top of DuckDB. Records
// are kept as JSON payloads keyed by element id, one table per collection;
// query filters translate to json_extract predicates.
package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
)

type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the DuckDB database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close(context.Context) error { return s.db.Close() }

func (s *Store) ensureTable(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			element_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			stored_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, quoteIdent(name)))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

func (s *Store) Store(ctx context.Context, value domain.Element, info ports.TypeInfo) (string, error) {
	value.Header().EnsureID()
	table := info.Collection()
	if err := s.ensureTable(ctx, table); err != nil {
		return "", err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode element: %w", err)
	}
	id := value.Header().ElementID

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (element_id, payload)
		VALUES (?, ?)
		ON CONFLICT (element_id) DO UPDATE SET payload = excluded.payload`,
		quoteIdent(table)), id, string(payload))
	if err != nil {
		return "", fmt.Errorf("upsert element %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Retrieve(ctx context.Context, idField, idValue string, info ports.TypeInfo, out domain.Element) (bool, error) {
	tables, err := s.matchingTables(ctx, info)
	if err != nil {
		return false, err
	}

	for _, table := range tables {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT payload FROM %s WHERE json_extract_string(payload, ?) = ? LIMIT 1`,
			quoteIdent(table)), jsonPath(idField), idValue)

		var payload string
		switch err := row.Scan(&payload); err {
		case nil:
			if err := json.Unmarshal([]byte(payload), out); err != nil {
				return false, fmt.Errorf("decode element: %w", err)
			}
			return true, nil
		case sql.ErrNoRows:
			continue
		default:
			return false, fmt.Errorf("retrieve from %s: %w", table, err)
		}
	}
	return false, nil
}

func (s *Store) Search(ctx context.Context, query domain.Query, info ports.TypeInfo, out any) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("search target must be a pointer to a slice, got %T", out)
	}

	tables, err := s.matchingTables(ctx, info)
	if err != nil {
		return err
	}

	sliceVal := outVal.Elem()
	elemType := sliceVal.Type().Elem()

	for _, table := range tables {
		where, args := buildWhere(query)
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT payload FROM %s%s`, quoteIdent(table), where), args...)
		if err != nil {
			return fmt.Errorf("search %s: %w", table, err)
		}
		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan payload: %w", err)
			}
			target := reflect.New(elemType)
			if err := json.Unmarshal([]byte(payload), target.Interface()); err != nil {
				_ = rows.Close()
				return fmt.Errorf("decode element: %w", err)
			}
			sliceVal = reflect.Append(sliceVal, target.Elem())
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("iterate %s: %w", table, err)
		}
		_ = rows.Close()
	}
	outVal.Elem().Set(sliceVal)
	return nil
}

func (s *Store) Update(ctx context.Context, idField, idValue string, value domain.Element, info ports.TypeInfo) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode element: %w", err)
	}

	tables, err := s.matchingTables(ctx, info)
	if err != nil {
		return false, err
	}
	for _, table := range tables {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`UPDATE %s SET payload = ? WHERE json_extract_string(payload, ?) = ?`,
			quoteIdent(table)), string(payload), jsonPath(idField), idValue)
		if err != nil {
			return false, fmt.Errorf("update %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Delete(ctx context.Context, idField, idValue string, info ports.TypeInfo) (bool, error) {
	tables, err := s.matchingTables(ctx, info)
	if err != nil {
		return false, err
	}
	for _, table := range tables {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE json_extract_string(payload, ?) = ?`,
			quoteIdent(table)), jsonPath(idField), idValue)
		if err != nil {
			return false, fmt.Errorf("delete from %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) BulkStore(ctx context.Context, values []domain.Element, info ports.TypeInfo, ignoreDuplicates bool) ([]string, error) {
	table := info.Collection()
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	conflict := "DO UPDATE SET payload = excluded.payload"
	if ignoreDuplicates {
		conflict = "DO NOTHING"
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (element_id, payload) VALUES (?, ?) ON CONFLICT (element_id) %s`,
		quoteIdent(table), conflict)

	ids := make([]string, 0, len(values))
	for _, value := range values {
		value.Header().EnsureID()
		id := value.Header().ElementID
		payload, err := json.Marshal(value)
		if err != nil {
			continue
		}
		res, err := s.db.ExecContext(ctx, stmt, id, string(payload))
		if err != nil {
			// Per-item isolation: record the failure by omission.
			continue
		}
		if ignoreDuplicates {
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// matchingTables resolves which tables are searched: the exact partition
// when a tag is set, otherwise every existing table of the base collection.
func (s *Store) matchingTables(ctx context.Context, info ports.TypeInfo) ([]string, error) {
	if info.Tag != "" {
		if err := s.ensureTable(ctx, info.Collection()); err != nil {
			return nil, err
		}
		return []string{info.Collection()}, nil
	}

	base := info.Kind.Collection()
	if err := s.ensureTable(ctx, base); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_name = ? OR table_name LIKE ? ESCAPE '\'`, base, base+`\_%`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// buildWhere translates the query into a WHERE clause over json_extract
// predicates. Comparison filters cast both sides to DOUBLE for numeric
// values and compare ISO timestamps lexically otherwise.
func buildWhere(query domain.Query) (string, []any) {
	if len(query) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	for field, filter := range query {
		path := jsonPath(field)
		switch filter.Operator {
		case domain.OpEqual:
			clauses = append(clauses, `json_extract_string(payload, ?) = ?`)
			args = append(args, path, stringValue(filter.Value))
		case domain.OpNotEqual:
			clauses = append(clauses, `(json_extract_string(payload, ?) IS NULL OR json_extract_string(payload, ?) <> ?)`)
			args = append(args, path, path, stringValue(filter.Value))
		case domain.OpGreaterEqual:
			if n, ok := numericValue(filter.Value); ok {
				clauses = append(clauses, `TRY_CAST(json_extract_string(payload, ?) AS DOUBLE) >= ?`)
				args = append(args, path, n)
			} else {
				clauses = append(clauses, `json_extract_string(payload, ?) >= ?`)
				args = append(args, path, stringValue(filter.Value))
			}
		case domain.OpLessEqual:
			if n, ok := numericValue(filter.Value); ok {
				clauses = append(clauses, `TRY_CAST(json_extract_string(payload, ?) AS DOUBLE) <= ?`)
				args = append(args, path, n)
			} else {
				clauses = append(clauses, `json_extract_string(payload, ?) <= ?`)
				args = append(args, path, stringValue(filter.Value))
			}
		case domain.OpEqualsMany:
			values := sliceValue(filter.Value)
			if len(values) == 0 {
				clauses = append(clauses, `1 = 0`)
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			clauses = append(clauses, fmt.Sprintf(`json_extract_string(payload, ?) IN (%s)`, placeholders))
			args = append(args, path)
			for _, v := range values {
				args = append(args, stringValue(v))
			}
		case domain.OpArrayContains:
			needle, _ := json.Marshal(stringValue(filter.Value))
			clauses = append(clauses, `json_contains(json_extract(payload, ?), ?)`)
			args = append(args, path, string(needle))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func jsonPath(field string) string {
	return "$." + field
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	case domain.ElementKind:
		return string(s)
	}
	return fmt.Sprintf("%v", v)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sliceValue(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	return nil
}
