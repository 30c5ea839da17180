package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/objpool"
)

var (
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`)
	textDatePattern    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+([a-z]+)(?:\s+de\s+(\d{4}|\d{2}))?\b`)
	capacityPattern    = regexp.MustCompile(`(?i)\b(\d+)\s*(?:personas?|hu[eé]sped(?:es)?|gente|pax)`)
	emailPattern       = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern       = regexp.MustCompile(`(?:\+56\s*)?(?:\b9\s*)?\b(?:\d{4}\s*\d{4}|\d{8})\b`)
)

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

// Capitalized words that open or fill guest messages but are not names.
var nonNames = map[string]struct{}{}

// Names accepted regardless of length.
var knownNames = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`propiedad casa depto airbnb reserva confirmo
		hola buenas tardes noches gracias favor necesito quiero deseo me mi nos nuestra
		mensaje consulta pregunta duda ayuda información disponible libre ocupado fechas
		fecha precio costo valor pagar pago dinero efectivo tarjeta transferencia deposito
		depósito caución garantía checkin checkout entrada salida hospedar alojar quedar
		tomar reservar alquilar persona personas huésped huéspedes invitado invitados
		día días noche semana semanas saludos estimado estimada`) {
		nonNames[w] = struct{}{}
	}
	for _, w := range strings.Fields(`ana eva luz pia sol`) {
		knownNames[w] = struct{}{}
	}
}

var confirmationWords = map[string]struct{}{
	"confirmo": {}, "confirmado": {}, "confirmada": {}, "ok": {}, "si": {},
	"vale": {}, "perfecto": {},
}

// PatternExtractor extracts entities from Spanish guest messages with
// word lists and regular expressions.
type PatternExtractor struct {
	now  func() time.Time
	seen *objpool.Pool[map[string]struct{}]
}

// NewPatternExtractor creates a PatternExtractor. seen pools the sets used
// to deduplicate names; nil allocates a private pool.
func NewPatternExtractor(seen *objpool.Pool[map[string]struct{}]) *PatternExtractor {
	if seen == nil {
		seen = objpool.NewMapPool[string, struct{}]("extractor_seen", 16)
	}
	return &PatternExtractor{now: time.Now, seen: seen}
}

// Names returns capitalized words that look like names, in order of first
// appearance and without case-insensitive duplicates.
func (e *PatternExtractor) Names(_ context.Context, text string) ([]string, error) {
	seen := e.seen.Get()
	defer e.seen.Put(seen)

	names := make([]string, 0)
	words := strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if !isCapitalized(w) {
			continue
		}
		lower := strings.ToLower(w)
		if _, skip := nonNames[lower]; skip {
			continue
		}
		if _, known := knownNames[lower]; !known && utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		names = append(names, w)
	}
	return names, nil
}

// Dates returns numeric (DD/MM/YYYY, DD-MM-YY) and written ("15 de marzo
// de 2024") dates. Written dates without a year take the current year.
func (e *PatternExtractor) Dates(_ context.Context, text string) ([]DateMention, error) {
	dates := make([]DateMention, 0)

	for _, m := range numericDatePattern.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if d, ok := formatDate(day, time.Month(month), parseYear(m[3], 0)); ok {
			dates = append(dates, DateMention{Date: d, Match: m[0]})
		}
	}

	current := e.now().Year()
	for _, m := range textDatePattern.FindAllStringSubmatch(text, -1) {
		month, ok := spanishMonths[strings.ToLower(m[2])]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		if d, ok := formatDate(day, month, parseYear(m[3], current)); ok {
			dates = append(dates, DateMention{Date: d, Match: m[0]})
		}
	}
	return dates, nil
}

// Capacity returns the first "N personas" style party size, or 0.
func (e *PatternExtractor) Capacity(_ context.Context, text string) (int, error) {
	m := capacityPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Contact returns the first email address and phone number in text.
func (e *PatternExtractor) Contact(_ context.Context, text string) (Contact, error) {
	return Contact{
		Email: emailPattern.FindString(text),
		Phone: strings.TrimSpace(phonePattern.FindString(text)),
	}, nil
}

// Confirmation reports whether text contains a confirming word such as
// "confirmo", "ok", "sí" or "de acuerdo".
func (e *PatternExtractor) Confirmation(_ context.Context, text string) (bool, error) {
	words := strings.Fields(cache.Normalize(text))
	for i, w := range words {
		if _, ok := confirmationWords[w]; ok {
			return true, nil
		}
		if w == "de" && i+1 < len(words) && words[i+1] == "acuerdo" {
			return true, nil
		}
	}
	return false, nil
}

func isCapitalized(word string) bool {
	for i, r := range word {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if !unicode.IsLower(r) {
			return false
		}
	}
	return utf8.RuneCountInString(word) > 1
}

func parseYear(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	y, _ := strconv.Atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func formatDate(day int, month time.Month, year int) (string, bool) {
	if month < time.January || month > time.December || day < 1 || year <= 0 {
		return "", false
	}
	// time.Date normalizes overflow, so an invalid day changes the month.
	if t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC); t.Month() != month {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, int(month), year), true
}
