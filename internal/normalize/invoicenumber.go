package normalize

import (
	"regexp"
	"strings"
)

// NumberParts is the structural decomposition of an invoice number.
// Sequence and the month inside DatePart are stripped of leading zeros so
// parts compare equal across padding variants.
type NumberParts struct {
	Prefix   string
	Sequence string
	DatePart string
}

// NumberShape describes one invoice numbering convention. The matcher is
// written against this interface so alternate national conventions can be
// plugged in without touching the scoring rules.
type NumberShape interface {
	// Normalize renders a raw invoice number in canonical form, repairing
	// spacing damage introduced by bank systems. Input that does not fit
	// the shape is returned flattened and uppercased.
	Normalize(raw string) string

	// Match reports whether two invoice numbers are the same number,
	// tolerating spacing, case and zero-padding differences.
	Match(a, b string) bool

	// FindAll extracts every substring of a free-text block that fits the
	// shape, in order of appearance, normalized and deduplicated.
	FindAll(text string) []string

	// Parts decomposes a number into prefix, sequence and date part.
	Parts(raw string) (NumberParts, bool)
}

// seqMonthYearPattern recognizes the PREFIX SEQ/MM/YYYY convention. The
// sequence digits may be split by single spaces ("PS 1 7/12/2025"), which
// banks introduce when reflowing transfer titles.
var seqMonthYearPattern = regexp.MustCompile(`(?:\b([A-Z]{1,5})[\s.\-]{0,3})?(\d(?: ?\d){0,5})\s?/\s?(\d{1,2})\s?/\s?(\d{4})`)

var seqMonthYearAnchored = regexp.MustCompile(`^(?:([A-Z]{1,5})[\s.\-]{0,3})?(\d(?: ?\d){0,5})\s?/\s?(\d{1,2})\s?/\s?(\d{4})$`)

// SeqMonthYearShape is the default NumberShape for numbers of the form
// "PS 17/12/2025": a short alphabetic series prefix, a sequence number,
// then month and year separated by slashes.
type SeqMonthYearShape struct{}

// DefaultNumberShape is the shape used when no custom convention is
// configured.
var DefaultNumberShape NumberShape = SeqMonthYearShape{}

// FlattenSpaces collapses every whitespace run into a single space and
// trims the ends.
func FlattenSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (SeqMonthYearShape) Normalize(raw string) string {
	flat := strings.ToUpper(FlattenSpaces(raw))
	m := seqMonthYearAnchored.FindStringSubmatch(flat)
	if m == nil {
		return flat
	}
	return renderCanonical(m)
}

func (s SeqMonthYearShape) Match(a, b string) bool {
	pa, okA := s.Parts(a)
	pb, okB := s.Parts(b)
	if okA && okB {
		if pa.Sequence != pb.Sequence || pa.DatePart != pb.DatePart {
			return false
		}
		// A missing prefix on one side happens when a title cites the
		// number without its series letters.
		return pa.Prefix == pb.Prefix || pa.Prefix == "" || pb.Prefix == ""
	}

	ka := strings.ReplaceAll(strings.ToUpper(a), " ", "")
	kb := strings.ReplaceAll(strings.ToUpper(b), " ", "")
	return ka != "" && ka == kb
}

func (SeqMonthYearShape) FindAll(text string) []string {
	flat := strings.ToUpper(FlattenSpaces(text))
	matches := seqMonthYearPattern.FindAllStringSubmatch(flat, -1)
	if matches == nil {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var found []string
	for _, m := range matches {
		canonical := renderCanonical(m)
		if !seen[canonical] {
			seen[canonical] = true
			found = append(found, canonical)
		}
	}
	return found
}

func (SeqMonthYearShape) Parts(raw string) (NumberParts, bool) {
	flat := strings.ToUpper(FlattenSpaces(raw))
	m := seqMonthYearAnchored.FindStringSubmatch(flat)
	if m == nil {
		return NumberParts{}, false
	}

	return NumberParts{
		Prefix:   m[1],
		Sequence: trimLeadingZeros(Digits(m[2])),
		DatePart: trimLeadingZeros(m[3]) + "/" + m[4],
	}, true
}

func renderCanonical(m []string) string {
	seq := Digits(m[2])
	number := seq + "/" + m[3] + "/" + m[4]
	if m[1] != "" {
		return m[1] + " " + number
	}
	return number
}

func trimLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}
