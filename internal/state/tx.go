package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Key identifies a single row by column values.
type Key map[string]any

// Values are column values written to a row.
type Values map[string]any

type action string

const (
	actionInsert action = "insert"
	actionUpdate action = "update"
	actionDelete action = "delete"
)

// modelUpdate is an undo log record. Data holds what is needed to revert the change:
// nothing for inserts, the previous values of updated columns, the whole row for deletes.
type modelUpdate struct {
	ID        int64  `meddler:"id,pk"`
	Index     string `meddler:"index_name"`
	Level     uint64 `meddler:"level"`
	Table     string `meddler:"model_table"`
	Key       string `meddler:"model_key"`
	Action    string `meddler:"action"`
	Data      string `meddler:"data"`
	CreatedAt int64  `meddler:"created_at"`
}

// Tx is a handler transaction bound to an index and a level.
// Writes made through Insert, Update and Delete are recorded in the undo log
// while the level is within the rollback window, so they can be reverted by a rollback.
type Tx struct {
	tx      *sqlx.Tx
	meddler *meddler.Database
	index   string
	level   uint64
	record  bool
	updates int
}

// Index returns the name of the index the transaction belongs to.
func (t *Tx) Index() string { return t.index }

// Level returns the level being processed.
func (t *Tx) Level() uint64 { return t.level }

// Get runs a query returning a single row into dest. Placeholders are written as '?'.
func (t *Tx) Get(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.GetContext(ctx, dest, t.tx.Rebind(query), args...)
}

// Select runs a query returning many rows into dest. Placeholders are written as '?'.
func (t *Tx) Select(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.SelectContext(ctx, dest, t.tx.Rebind(query), args...)
}

// Insert creates a row. The undo record deletes it again.
func (t *Tx) Insert(ctx context.Context, table string, key Key, values Values) error {
	if err := checkWrite(table, key, values); err != nil {
		return err
	}

	row := make(map[string]any, len(key)+len(values))
	maps.Copy(row, values)
	maps.Copy(row, key)

	if err := insertRow(ctx, t.tx, table, row); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	return t.recordUpdate(table, key, actionInsert, nil)
}

// Update changes columns of an existing row. Key columns cannot be changed.
// The undo record restores the previous values of the updated columns.
func (t *Tx) Update(ctx context.Context, table string, key Key, values Values) error {
	if err := checkWrite(table, key, values); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	var previous map[string]any
	if t.record {
		var err error
		if previous, err = selectRow(ctx, t.tx, table, slices.Sorted(maps.Keys(values)), key); err != nil {
			return fmt.Errorf("failed to read %s before update: %w", table, err)
		}
	}

	columns := slices.Sorted(maps.Keys(values))
	assignments := make([]string, 0, len(columns))
	args := make([]any, 0, len(values)+len(key))
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		args = append(args, values[column])
	}
	where, whereArgs := whereClause(key)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(assignments, ", "), where)
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update %s: no row matches key", table)
	}

	return t.recordUpdate(table, key, actionUpdate, previous)
}

// Delete removes a row. The undo record inserts the whole row back.
func (t *Tx) Delete(ctx context.Context, table string, key Key) error {
	if err := checkWrite(table, key, nil); err != nil {
		return err
	}

	var previous map[string]any
	if t.record {
		var err error
		if previous, err = selectRow(ctx, t.tx, table, nil, key); err != nil {
			return fmt.Errorf("failed to read %s before delete: %w", table, err)
		}
	}

	if err := deleteRow(ctx, t.tx, table, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return t.recordUpdate(table, key, actionDelete, previous)
}

func (t *Tx) recordUpdate(table string, key Key, act action, data map[string]any) error {
	if !t.record {
		return nil
	}

	encodedKey, err := encodeRow(key)
	if err != nil {
		return err
	}

	var encodedData string
	if data != nil {
		if encodedData, err = encodeRow(data); err != nil {
			return err
		}
	}

	update := &modelUpdate{
		Index:     t.index,
		Level:     t.level,
		Table:     table,
		Key:       encodedKey,
		Action:    string(act),
		Data:      encodedData,
		CreatedAt: time.Now().UTC().Unix(),
	}
	if err := t.meddler.Insert(t.tx, "model_updates", update); err != nil {
		return fmt.Errorf("failed to record model update: %w", err)
	}
	t.updates++

	return nil
}

// revert applies the inverse of a recorded change.
func revert(ctx context.Context, tx *sqlx.Tx, u *modelUpdate) error {
	key, err := decodeRow(u.Key)
	if err != nil {
		return err
	}

	switch action(u.Action) {
	case actionInsert:
		return deleteRow(ctx, tx, u.Table, key)

	case actionUpdate:
		previous, err := decodeRow(u.Data)
		if err != nil {
			return err
		}
		columns := slices.Sorted(maps.Keys(previous))
		assignments := make([]string, 0, len(columns))
		args := make([]any, 0, len(columns)+len(key))
		for _, column := range columns {
			assignments = append(assignments, column+" = ?")
			args = append(args, previous[column])
		}
		where, whereArgs := whereClause(key)
		args = append(args, whereArgs...)

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", u.Table, strings.Join(assignments, ", "), where)
		_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		return err

	case actionDelete:
		row, err := decodeRow(u.Data)
		if err != nil {
			return err
		}
		return insertRow(ctx, tx, u.Table, row)
	}

	return fmt.Errorf("unknown model update action '%s'", u.Action)
}

func insertRow(ctx context.Context, tx *sqlx.Tx, table string, row map[string]any) error {
	columns := slices.Sorted(maps.Keys(row))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		args = append(args, row[column])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
	_, err := tx.ExecContext(ctx, tx.Rebind(query), args...)

	return err
}

func deleteRow(ctx context.Context, tx *sqlx.Tx, table string, key Key) error {
	where, args := whereClause(key)
	_, err := tx.ExecContext(ctx, tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)), args...)

	return err
}

// selectRow reads the given columns of the row identified by key, or all of them when columns is nil.
func selectRow(ctx context.Context, tx *sqlx.Tx, table string, columns []string, key Key) (map[string]any, error) {
	selection := "*"
	if columns != nil {
		selection = strings.Join(columns, ", ")
	}
	where, args := whereClause(key)

	row := make(map[string]any)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selection, table, where)
	if err := tx.QueryRowxContext(ctx, tx.Rebind(query), args...).MapScan(row); err != nil {
		return nil, err
	}

	return row, nil
}

func whereClause(key Key) (string, []any) {
	columns := slices.Sorted(maps.Keys(key))
	conditions := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		conditions = append(conditions, column+" = ?")
		args = append(args, key[column])
	}

	return strings.Join(conditions, " AND "), args
}

func checkWrite(table string, key Key, values Values) error {
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("%w: table '%s'", ErrInvalidIdentifier, table)
	}
	if len(key) == 0 {
		return fmt.Errorf("write to %s requires a key", table)
	}
	for column := range key {
		if !identifierPattern.MatchString(column) {
			return fmt.Errorf("%w: column '%s'", ErrInvalidIdentifier, column)
		}
	}
	for column := range values {
		if !identifierPattern.MatchString(column) {
			return fmt.Errorf("%w: column '%s'", ErrInvalidIdentifier, column)
		}
		if _, ok := key[column]; ok {
			return fmt.Errorf("column '%s' of %s is part of the key and cannot be written", column, table)
		}
	}

	return nil
}

// encodeRow serializes row values for the undo log. Byte slices are stored as text.
func encodeRow(row map[string]any) (string, error) {
	normalized := make(map[string]any, len(row))
	for column, value := range row {
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		normalized[column] = value
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to encode row: %w", err)
	}

	return string(data), nil
}

// decodeRow restores row values, keeping integers exact.
func decodeRow(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}

	for column, value := range row {
		n, ok := value.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			row[column] = i
		} else if f, err := n.Float64(); err == nil {
			row[column] = f
		}
	}

	return row, nil
}
