package dispatcher_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadb-go/hadb/dispatcher"
)

type age int

type flag bool

type label string

type point struct{ X, Y int }

func TestEscape(t *testing.T) {
	f := newFixture(t, 1, dispatcher.Opts{}, "db1")
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	var nilDecimal *decimal.Decimal
	var nilUUID *uuid.UUID
	var nilInt *int
	seven := 7

	tests := []struct {
		name string
		in   any
		full bool
		want string
	}{
		{"nil", nil, false, "NULL"},
		{"true", true, false, "1"},
		{"false", false, false, "0"},
		{"int", 5, false, "5"},
		{"negative int64", int64(-3), false, "-3"},
		{"uint8", uint8(255), false, "255"},
		{"float", 1.5, false, "1.5"},
		{"float32", float32(0.25), false, "0.25"},
		{"decimal", decimal.RequireFromString("12.5"), false, "12.5"},
		{"nil decimal", nilDecimal, false, "NULL"},
		{"string", "abc", false, "'abc'"},
		{"quote", "it's", false, `'it\'s'`},
		{"wildcards kept", "a%b_c", false, "'a%b_c'"},
		{"wildcards escaped", "a%b_c", true, `'a\%b\_c'`},
		{"bytes", []byte("xyz"), false, "'xyz'"},
		{"uuid", id, false, "'6ba7b810-9dad-11d1-80b4-00c04fd430c8'"},
		{"time", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), false, "'2024-03-01 12:30:00'"},
		{"nil uuid pointer", nilUUID, false, "NULL"},
		{"uuid pointer", &id, false, "'6ba7b810-9dad-11d1-80b4-00c04fd430c8'"},
		{"nil int pointer", nilInt, false, "NULL"},
		{"int pointer", &seven, false, "7"},
		{"named int", age(5), false, "5"},
		{"named bool", flag(true), false, "1"},
		{"named string", label("it's"), false, `'it\'s'`},
		{"struct", point{1, 2}, false, "'{1 2}'"},
		{"slice", []int{1, 2}, false, "'[1 2]'"},
		{"nil slice", []int(nil), false, "NULL"},
		{"nil map", map[string]int(nil), false, "NULL"},
		{"empty struct", struct{}{}, false, "'{}'"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.d.Escape(context.Background(), tc.in, tc.full)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEscapeUnsupported(t *testing.T) {
	f := newFixture(t, 1, dispatcher.Opts{}, "db1")

	for _, v := range []any{math.NaN(), math.Inf(1), func() {}, make(chan int), complex(1, 2)} {
		_, err := f.d.Escape(context.Background(), v, false)
		assert.ErrorIs(t, err, dispatcher.ErrUnsupportedValue, "%T", v)
	}
}

func TestEscapeStringUsesConnection(t *testing.T) {
	f := newFixture(t, 1, dispatcher.Opts{}, "db1")

	s, err := f.d.EscapeString(context.Background(), `a\b%`, true)
	require.NoError(t, err)
	assert.Equal(t, `a\\b\%`, s)
	assert.Equal(t, 1, f.tr.Dials())

	_, err = f.d.EscapeString(context.Background(), "x", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.tr.Dials())
}

func TestEscapeWhileBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, dispatcher.Opts{}, "db1")

	_, _, err := f.d.AsyncQuery(ctx, "SELECT SLEEP(1)")
	require.NoError(t, err)

	s, err := f.d.Escape(ctx, "x", false)
	require.NoError(t, err)
	assert.Equal(t, "'x'", s)
}

func TestEscapeWithoutServers(t *testing.T) {
	f := newFixture(t, 1, dispatcher.Opts{})

	_, err := f.d.Escape(context.Background(), "x", false)
	assert.Error(t, err)

	s, err := f.d.Escape(context.Background(), 7, false)
	require.NoError(t, err)
	assert.Equal(t, "7", s)
}
