package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// Selection picks rows of one recorded table. Columns are the field names of
// the entry struct the table was mapped to. The zero Selection picks every
// row in storage order.
type Selection struct {
	equals  []equality
	orderBy string
	desc    bool
	limit   int
	offset  int
}

type equality struct {
	column string
	value  any
}

// Equal keeps only the rows whose column holds value.
func (s Selection) Equal(column string, value any) Selection {
	s.equals = append(s.equals[:len(s.equals):len(s.equals)],
		equality{column: column, value: value})

	return s
}

// OrderByNumber sorts the rows by the numeric value of a column, ascending.
// Recorded IDs are decimal strings, so a textual order would put "10" before
// "9".
func (s Selection) OrderByNumber(column string) Selection {
	s.orderBy, s.desc = column, false
	return s
}

// Descending reverses the order set by OrderByNumber.
func (s Selection) Descending() Selection {
	s.desc = true
	return s
}

// Page returns at most limit rows after skipping offset rows. A limit of 0
// means no limit.
func (s Selection) Page(limit, offset int) Selection {
	s.limit, s.offset = limit, offset
	return s
}

// Rows is one page of a table together with the number of rows that match
// the selection across all pages.
type Rows struct {
	Entries []any
	Total   int
}

// DataReader reads a recording.
type DataReader interface {
	// MapTable binds a table to the struct type its rows are decoded into.
	MapTable(tableName string, sampleEntry any)

	// Query decodes the selected rows of a mapped table. Each entry is a
	// pointer to the mapped struct type.
	Query(ctx context.Context, tableName string, sel Selection) (Rows, error)

	// Close closes the reader.
	Close() error
}

// tableMapping knows which struct field each column decodes into.
type tableMapping struct {
	entryType reflect.Type
	fieldOf   map[string]int
}

func newTableMapping(sampleEntry any) tableMapping {
	if !structs.IsStruct(sampleEntry) {
		panic(fmt.Sprintf("cannot map a table to %T, which is not a struct",
			sampleEntry))
	}

	t := reflect.Indirect(reflect.ValueOf(sampleEntry)).Type()
	m := tableMapping{entryType: t, fieldOf: make(map[string]int)}

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			m.fieldOf[t.Field(i).Name] = i
		}
	}

	return m
}

func (m tableMapping) hasColumn(column string) bool {
	_, ok := m.fieldOf[column]
	return ok
}

type sqliteReader struct {
	db       *sql.DB
	mappings map[string]tableMapping
}

// NewReader opens a recording for reading.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, err
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB reads from an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:       db,
		mappings: make(map[string]tableMapping),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.mappings[tableName] = newTableMapping(sampleEntry)
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	sel Selection,
) (Rows, error) {
	m, ok := r.mappings[tableName]
	if !ok {
		return Rows{}, fmt.Errorf("table %s is not mapped", tableName)
	}

	where, args, err := whereClause(m, sel)
	if err != nil {
		return Rows{}, fmt.Errorf("query %s: %w", tableName, err)
	}

	rows := Rows{}

	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+where, args...).Scan(&rows.Total)
	if err != nil {
		return Rows{}, fmt.Errorf("count %s: %w", tableName, err)
	}

	tail, err := orderAndPage(m, sel)
	if err != nil {
		return Rows{}, fmt.Errorf("query %s: %w", tableName, err)
	}

	sqlRows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+tableName+where+tail, args...)
	if err != nil {
		return Rows{}, fmt.Errorf("query %s: %w", tableName, err)
	}
	defer sqlRows.Close()

	rows.Entries, err = decodeRows(sqlRows, m)
	if err != nil {
		return Rows{}, fmt.Errorf("decode %s: %w", tableName, err)
	}

	return rows, nil
}

func whereClause(m tableMapping, sel Selection) (string, []any, error) {
	if len(sel.equals) == 0 {
		return "", nil, nil
	}

	conds := make([]string, 0, len(sel.equals))
	args := make([]any, 0, len(sel.equals))

	for _, eq := range sel.equals {
		if !m.hasColumn(eq.column) {
			return "", nil, fmt.Errorf("unknown column %q", eq.column)
		}

		conds = append(conds, eq.column+" = ?")
		args = append(args, eq.value)
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func orderAndPage(m tableMapping, sel Selection) (string, error) {
	var b strings.Builder

	if sel.orderBy != "" {
		if !m.hasColumn(sel.orderBy) {
			return "", fmt.Errorf("unknown column %q", sel.orderBy)
		}

		b.WriteString(" ORDER BY CAST(" + sel.orderBy + " AS INTEGER)")

		if sel.desc {
			b.WriteString(" DESC")
		}
	}

	if sel.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", sel.limit, sel.offset)
	}

	return b.String(), nil
}

func decodeRows(rows *sql.Rows, m tableMapping) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var entries []any

	for rows.Next() {
		entry := reflect.New(m.entryType)
		targets := make([]any, len(columns))

		for i, column := range columns {
			field, ok := m.fieldOf[column]
			if !ok {
				targets[i] = new(any)
				continue
			}

			targets[i] = entry.Elem().Field(field).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		entries = append(entries, entry.Interface())
	}

	return entries, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
