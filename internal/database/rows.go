package database

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
)

// Row is the default shape of a fetched row: column name to value.
type Row map[string]any

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	// Type is the declared type as reported by the engine, upper-cased.
	// Empty for expressions.
	Type string `json:"type"`
}

// RowFactory builds a T from the values of one row. values is only valid
// for the duration of the call.
type RowFactory[T any] func(values []any, columns []Column) (T, error)

// MapRow is the default RowFactory.
func MapRow(values []any, columns []Column) (Row, error) {
	row := make(Row, len(columns))
	for i, col := range columns {
		row[col.Name] = values[i]
	}
	return row, nil
}

// SliceRow returns the raw values in column order.
func SliceRow(values []any, _ []Column) ([]any, error) {
	out := make([]any, len(values))
	copy(out, values)
	return out, nil
}

var structMapper = reflectx.NewMapperFunc("db", strings.ToLower)

// StructRow returns a RowFactory filling the exported fields of a struct T
// (or *T) by their db tag, or by lower-cased field name when untagged.
// Columns without a matching field are an error.
func StructRow[T any]() RowFactory[T] {
	return func(values []any, columns []Column) (T, error) {
		var out T

		v := reflect.ValueOf(&out).Elem()
		dst := v
		if v.Kind() == reflect.Pointer {
			dst = reflect.New(v.Type().Elem())
			v.Set(dst)
			dst = dst.Elem()
		}
		if dst.Kind() != reflect.Struct {
			return out, fmt.Errorf("row target %s is not a struct", v.Type())
		}

		names := make([]string, len(columns))
		for i, col := range columns {
			names[i] = col.Name
		}

		for i, idx := range structMapper.TraversalsByName(dst.Type(), names) {
			if len(idx) == 0 {
				return out, fmt.Errorf("missing destination field for column %q in %s", names[i], dst.Type())
			}
			field := reflectx.FieldByIndexes(dst, idx)
			if err := assign(field, values[i]); err != nil {
				return out, fmt.Errorf("failed to assign column %q: %w", names[i], err)
			}
		}
		return out, nil
	}
}

func assign(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(field.Type()) {
		field.Set(src)
		return nil
	}

	if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(value)
	}

	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case []byte:
			field.SetString(string(v))
		case int64:
			field.SetString(strconv.FormatInt(v, 10))
		case float64:
			field.SetString(strconv.FormatFloat(v, 'g', -1, 64))
		default:
			field.SetString(fmt.Sprint(v))
		}
		return nil
	case reflect.Bool:
		switch v := value.(type) {
		case int64:
			field.SetBool(v != 0)
			return nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			field.SetBool(b)
			return nil
		}
	}

	if isNumeric(src.Kind()) && isNumeric(field.Kind()) {
		field.Set(src.Convert(field.Type()))
		return nil
	}
	if src.Kind() == reflect.String && isNumeric(field.Kind()) {
		return assignNumericString(field, value.(string))
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func assignNumericString(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	}
	return nil
}
