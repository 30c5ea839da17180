//go:build !integration

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternExtractor_Names(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{name: "greeting is not a name", text: "Hola, soy María José", expected: []string{"María", "José"}},
		{name: "duplicates ignore case", text: "Pedro y PEDRO y Pedro", expected: []string{"Pedro"}},
		{name: "short known name", text: "Viaja Ana con Sol", expected: []string{"Viaja", "Ana", "Sol"}},
		{name: "short unknown word", text: "Yo y Al", expected: []string{}},
		{name: "nothing capitalized", text: "quiero reservar", expected: []string{}},
	}

	ex := NewPatternExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.Names(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPatternExtractor_NamesReturnsSeenSet(t *testing.T) {
	ex := NewPatternExtractor(nil)

	_, err := ex.Names(context.Background(), "Gonzalo Rojas")
	require.NoError(t, err)
	stats := ex.seen.Stats()
	assert.Equal(t, 1, stats.Idle)

	got, err := ex.Names(context.Background(), "Gonzalo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gonzalo"}, got)
	assert.Equal(t, int64(1), ex.seen.Stats().Reused)
}

func TestPatternExtractor_Dates(t *testing.T) {
	ex := NewPatternExtractor(nil)
	ex.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		text     string
		expected []DateMention
	}{
		{name: "numeric with slashes", text: "llego el 5/3/2025", expected: []DateMention{{Date: "05/03/2025", Match: "5/3/2025"}}},
		{name: "numeric two digit year", text: "del 01-12-25", expected: []DateMention{{Date: "01/12/2025", Match: "01-12-25"}}},
		{name: "invalid day", text: "el 31/02/2025", expected: []DateMention{}},
		{name: "written without year", text: "el 15 de marzo", expected: []DateMention{{Date: "15/03/2025", Match: "15 de marzo"}}},
		{name: "written with year", text: "el 2 de Enero de 2026", expected: []DateMention{{Date: "02/01/2026", Match: "2 de Enero de 2026"}}},
		{name: "unknown month word", text: "somos 3 de familia", expected: []DateMention{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.Dates(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPatternExtractor_Capacity(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{text: "somos 4 personas", expected: 4},
		{text: "1 persona", expected: 1},
		{text: "6 huéspedes", expected: 6},
		{text: "6 huespedes", expected: 6},
		{text: "10pax", expected: 10},
		{text: "sin cantidad", expected: 0},
	}

	ex := NewPatternExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ex.Capacity(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPatternExtractor_Contact(t *testing.T) {
	ex := NewPatternExtractor(nil)

	got, err := ex.Contact(context.Background(), "Escríbeme a ana.rojas@correo.cl o llama al +56 9 1234 5678")
	require.NoError(t, err)
	assert.Equal(t, Contact{Email: "ana.rojas@correo.cl", Phone: "+56 9 1234 5678"}, got)

	got, err = ex.Contact(context.Background(), "sin datos")
	require.NoError(t, err)
	assert.Equal(t, Contact{}, got)
}

func TestPatternExtractor_Confirmation(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{text: "Confirmo la reserva", expected: true},
		{text: "Sí, perfecto", expected: true},
		{text: "de acuerdo!", expected: true},
		{text: "OK", expected: true},
		{text: "estoy de vacaciones", expected: false},
		{text: "lo veremos", expected: false},
	}

	ex := NewPatternExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ex.Confirmation(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
