package template

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// Matcher selects the best-matching template for a raw message and extracts
// its raw field values. Selection is first-match-wins over the store's
// declaration order, never best-score-wins, so results are deterministic and
// explainable.
type Matcher struct {
	store *Store
	log   zerolog.Logger
}

// NewMatcher creates a matcher over a compiled template store.
func NewMatcher(store *Store, log zerolog.Logger) *Matcher {
	return &Matcher{store: store, log: log.With().Str("component", "template_matcher").Logger()}
}

// Match returns the candidate extracted by the first template whose match
// rules all succeed and whose required fields all capture. A template that
// matches but cannot capture the required field set is skipped, not emitted
// partially. When nothing matches, the error is a NoTemplateMatchedError and
// the sender and subject are logged for later template authoring.
func (m *Matcher) Match(msg domain.RawMessage) (*domain.CandidateTransaction, error) {
	body := Sanitize(msg.Body)

	for _, t := range m.store.All() {
		if !m.rulesPass(t, msg) {
			continue
		}

		fields, captured := m.extract(t, msg, body)
		if !hasRequiredFields(fields) {
			m.log.Debug().
				Str("template", t.ID).
				Str("message_id", msg.MessageID).
				Msg("Template matched rules but missed required fields, advancing")
			continue
		}

		confidence := float64(captured) / float64(ruleCount(t))
		m.log.Info().
			Str("template", t.ID).
			Int("template_version", t.Version).
			Str("message_id", msg.MessageID).
			Float64("confidence", confidence).
			Msg("Template matched")

		return &domain.CandidateTransaction{
			SourceMessageID: msg.MessageID,
			AccountID:       msg.AccountID,
			UserID:          msg.UserID,
			TemplateID:      t.ID,
			TemplateVersion: t.Version,
			ExtractedFields: fields,
			MatchConfidence: confidence,
			ReceivedAt:      msg.ReceivedAt,
		}, nil
	}

	m.log.Warn().
		Str("message_id", msg.MessageID).
		Str("sender", msg.Sender).
		Str("subject", msg.Subject).
		Msg("No template matched")

	return nil, &domain.NoTemplateMatchedError{
		MessageID: msg.MessageID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
	}
}

func (m *Matcher) rulesPass(t *Template, msg domain.RawMessage) bool {
	if t.SenderContains != "" &&
		!strings.Contains(strings.ToLower(msg.Sender), strings.ToLower(t.SenderContains)) {
		return false
	}
	if t.SenderDomain != "" && !senderHasDomain(msg.Sender, t.SenderDomain) {
		return false
	}
	if t.subjectRe != nil && !t.subjectRe.MatchString(msg.Subject) {
		return false
	}
	return true
}

// extract runs every extraction rule and returns the captured raw values plus
// the number of rules that produced one.
func (m *Matcher) extract(t *Template, msg domain.RawMessage, body string) (map[string]string, int) {
	fields := make(map[string]string, len(t.Fields))
	captured := 0

	for name, value := range t.fixedFields {
		fields[name] = value
		captured++
	}
	for name, re := range t.fieldRes {
		if v, ok := firstCapture(re.FindStringSubmatch(body)); ok {
			fields[name] = v
			captured++
		}
	}

	// Vendor fallback from the subject line.
	if _, ok := fields["vendor"]; !ok && t.subjectVendorRe != nil {
		if v, vok := firstCapture(t.subjectVendorRe.FindStringSubmatch(msg.Subject)); vok {
			fields["vendor"] = v
			captured++
		}
	}

	return fields, captured
}

// ruleCount is the number of rules a template can capture with. The
// subject-vendor fallback counts when vendor is not already a body field,
// keeping confidence on a 0..1 scale.
func ruleCount(t *Template) int {
	n := len(t.Fields)
	if t.subjectVendorRe != nil {
		if _, ok := t.Fields["vendor"]; !ok {
			n++
		}
	}
	return n
}

// hasRequiredFields enforces the minimum capture set: an amount plus either
// an account fragment or a vendor.
func hasRequiredFields(fields map[string]string) bool {
	if _, ok := fields["amount"]; !ok {
		return false
	}
	_, hasAccount := fields["account"]
	_, hasVendor := fields["vendor"]
	return hasAccount || hasVendor
}

// firstCapture returns the first non-empty capture group, or the whole match
// when the pattern has no groups.
func firstCapture(match []string) (string, bool) {
	if match == nil {
		return "", false
	}
	if len(match) == 1 {
		v := strings.TrimSpace(match[0])
		return v, v != ""
	}
	for _, g := range match[1:] {
		if g = strings.TrimSpace(g); g != "" {
			return g, true
		}
	}
	return "", false
}

func senderHasDomain(sender, domainSuffix string) bool {
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return false
	}
	d := strings.ToLower(strings.Trim(sender[at+1:], "> "))
	return d == strings.ToLower(domainSuffix) || strings.HasSuffix(d, "."+strings.ToLower(domainSuffix))
}
