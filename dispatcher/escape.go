package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hadb-go/hadb"
)

var wildcardEscaper = strings.NewReplacer(`%`, `\%`, `_`, `\_`)

// Escape renders v as an SQL literal: nil values as NULL, booleans as
// 1 or 0, numbers unquoted and everything else as a quoted string
// escaped by the transport. Named types follow their underlying kind. With fullEscape the LIKE wildcards % and _ are escaped
// too.
func (d *Dispatcher) Escape(ctx context.Context, v any, fullEscape bool) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		if v == nil {
			return "NULL", nil
		}
		return v.String(), nil
	case string:
		return d.quote(ctx, v, fullEscape)
	case []byte:
		if v == nil {
			return "NULL", nil
		}
		return d.quote(ctx, string(v), fullEscape)
	case uuid.UUID:
		return d.quote(ctx, v.String(), fullEscape)
	case time.Time:
		return d.quote(ctx, v.Format("2006-01-02 15:04:05.999999"), fullEscape)
	case fmt.Stringer:
		if isNil(reflect.ValueOf(v)) {
			return "NULL", nil
		}
		return d.quote(ctx, v.String(), fullEscape)
	default:
		return d.escapeValue(ctx, reflect.ValueOf(v), fullEscape)
	}
}

// escapeValue handles named and composite types by kind. Pointers are
// followed, other composites are quoted in their fmt form.
func (d *Dispatcher) escapeValue(ctx context.Context, rv reflect.Value, fullEscape bool) (string, error) {
	if isNil(rv) {
		return "NULL", nil
	}
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return "1", nil
		}
		return "0", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float(), rv.Type().Bits())
	case reflect.String:
		return d.quote(ctx, rv.String(), fullEscape)
	case reflect.Pointer, reflect.Interface:
		return d.Escape(ctx, rv.Elem().Interface(), fullEscape)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
	default:
		return d.quote(ctx, fmt.Sprint(rv.Interface()), fullEscape)
	}
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func formatFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize), nil
}

func (d *Dispatcher) quote(ctx context.Context, text string, fullEscape bool) (string, error) {
	escaped, err := d.EscapeString(ctx, text, fullEscape)
	if err != nil {
		return "", err
	}
	return "'" + escaped + "'", nil
}

// EscapeString escapes text for use inside a quoted literal, without
// adding the quotes.
func (d *Dispatcher) EscapeString(ctx context.Context, text string, fullEscape bool) (string, error) {
	conn, err := d.escapeConn(ctx)
	if err != nil {
		return "", err
	}
	escaped := conn.Escape(text)
	if fullEscape {
		escaped = wildcardEscaper.Replace(escaped)
	}
	return escaped, nil
}

// escapeConn returns a connection whose escaping rules apply. Escaping
// does not touch the network, so a busy connection will do.
func (d *Dispatcher) escapeConn(ctx context.Context) (*hadb.Connection, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.tx != nil {
		return d.tx, nil
	}
	if d.lastUsed != nil {
		return d.lastUsed, nil
	}
	conn, err := d.idleConn(ctx, false)
	if errors.Is(err, ErrNoConnectionAvailable) {
		if _, conn, ok := d.active.front(); ok {
			return conn, nil
		}
	}
	if err == nil {
		d.updateStats()
	}
	return conn, err
}
