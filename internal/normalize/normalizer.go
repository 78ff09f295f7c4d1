package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/antzucaro/matchr"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/template"
)

// Date layouts seen across the bank alert formats, tried in order.
var dateLayouts = []string{
	"Jan 2, 2006 at 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	"1/2/06 3:04 PM",
	"1/2/2006 3:04 PM",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999Z07:00",
}

// Abbreviated US timezones appearing in alert bodies. The abbreviation is
// stripped from the string and its zone used for parsing. GMT must be
// checked before MT.
var namedZones = []struct {
	abbr string
	zone string
}{
	{"GMT", "UTC"},
	{"ET", "America/New_York"},
	{"CT", "America/Chicago"},
	{"MT", "America/Denver"},
	{"PT", "America/Los_Angeles"},
}

var (
	nonLetterRe   = regexp.MustCompile(`[^a-z ]+`)
	multiSpaceRe  = regexp.MustCompile(` +`)
	parenAmountRe = regexp.MustCompile(`^\((.*)\)$`)
)

// Normalized holds the typed values produced from a candidate's raw captures.
type Normalized struct {
	Amount   float64
	Currency string
	Date     time.Time // UTC

	Vendor          string
	VendorCleaned   string
	VendorMetaphone string
	Account         string
	Description     string

	// Calendar components of Date in the account timezone.
	Day     int
	Month   int
	Year    int
	DayName string
}

// Normalizer converts raw extracted strings into typed values. Coercion
// failures are NormalizationErrors and always reject the candidate.
type Normalizer struct {
	loc             *time.Location
	defaultCurrency string
}

// New creates a normalizer for the account's timezone and default currency.
func New(loc *time.Location, defaultCurrency string) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, defaultCurrency: defaultCurrency}
}

// Normalize coerces the candidate's captures using the template that
// produced them (for the amount sign and currency override).
func (n *Normalizer) Normalize(c *domain.CandidateTransaction, tpl *template.Template) (*Normalized, error) {
	out := &Normalized{}

	amount, err := n.normalizeAmount(c.ExtractedFields["amount"], tpl.Direction)
	if err != nil {
		return nil, err
	}
	out.Amount = amount

	out.Currency = tpl.Currency
	if out.Currency == "" {
		out.Currency = n.defaultCurrency
	}

	date, err := n.normalizeDate(c.ExtractedFields["date"], c.ReceivedAt)
	if err != nil {
		return nil, err
	}
	out.Date = date

	out.Vendor = strings.TrimSpace(c.ExtractedFields["vendor"])
	out.VendorCleaned = CleanVendor(out.Vendor)
	out.VendorMetaphone = Metaphone(out.VendorCleaned)
	out.Account = strings.TrimSpace(c.ExtractedFields["account"])

	out.Description = out.VendorCleaned
	if out.Description == "" {
		out.Description = "unknown transaction"
	}

	local := civil.DateOf(date.In(n.loc))
	out.Day = local.Day
	out.Month = int(local.Month)
	out.Year = local.Year
	out.DayName = date.In(n.loc).Weekday().String()

	return out, nil
}

// normalizeAmount parses a captured amount string into a signed value.
// "$" and thousands separators are stripped; parentheses mean negative;
// the template direction fixes the final sign (debits negative).
func (n *Normalizer) normalizeAmount(raw string, direction template.Direction) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &domain.NormalizationError{Field: "amount", Value: raw, Err: fmt.Errorf("empty")}
	}

	negative := false
	if m := parenAmountRe.FindStringSubmatch(s); m != nil {
		negative = true
		s = m[1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.NormalizationError{Field: "amount", Value: raw, Err: err}
	}
	if negative {
		v = -v
	}

	switch direction {
	case template.DirectionDebit:
		if v > 0 {
			v = -v
		}
	case template.DirectionCredit:
		if v < 0 {
			v = -v
		}
	}
	return v, nil
}

// normalizeDate parses a captured date in the account timezone and returns a
// UTC instant. An absent capture falls back to the message's received time;
// a present but unparsable capture is a NormalizationError, never a default.
func (n *Normalizer) normalizeDate(raw string, receivedAt time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if receivedAt.IsZero() {
			return time.Time{}, &domain.NormalizationError{Field: "date", Value: raw, Err: fmt.Errorf("no date captured and no received time")}
		}
		return receivedAt.UTC(), nil
	}

	loc := n.loc
	for _, nz := range namedZones {
		if strings.Contains(s, nz.abbr) {
			if z, err := time.LoadLocation(nz.zone); err == nil {
				loc = z
			}
			s = strings.TrimSpace(strings.ReplaceAll(s, nz.abbr, ""))
			break
		}
	}

	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		// Date-only captures borrow the message's time of day.
		if parsed.Hour() == 0 && parsed.Minute() == 0 && parsed.Second() == 0 && !receivedAt.IsZero() {
			r := receivedAt.In(loc)
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(),
				r.Hour(), r.Minute(), r.Second(), 0, loc)
		}
		return parsed.UTC(), nil
	}

	return time.Time{}, &domain.NormalizationError{Field: "date", Value: raw, Err: fmt.Errorf("no layout matched")}
}

// CleanVendor lowercases, strips non-letters, and collapses whitespace, the
// same cleaning the feature pipeline applies before training.
func CleanVendor(vendor string) string {
	cleaned := nonLetterRe.ReplaceAllString(strings.ToLower(vendor), " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))
}

// Metaphone returns the primary double-metaphone code for a cleaned vendor,
// or the secondary when the primary is empty. Used for fuzzy vendor grouping.
func Metaphone(cleaned string) string {
	if cleaned == "" {
		return ""
	}
	primary, secondary := matchr.DoubleMetaphone(cleaned)
	if primary != "" {
		return primary
	}
	return secondary
}
