package mailbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/artifacts"
	"github.com/sdancy10/Financial-Tracker-Backend/internal/domain"
)

// Source supplies the raw messages for one user's batch. Implementations
// sit in front of whatever delivers mail exports; the pipeline only sees
// RawMessage values.
type Source interface {
	Messages(ctx context.Context, userID, accountID string, since, until time.Time) ([]domain.RawMessage, error)
}

// wireMessage is the export file's line format.
type wireMessage struct {
	MessageID  string    `json:"message_id"`
	AccountID  string    `json:"account_id"`
	UserID     string    `json:"user_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// ExportSource reads per-user mail exports: one JSON object per line, at
// {base}/{user_id}.jsonl. The export is produced by the mail-side sync job;
// this side only consumes it.
type ExportSource struct {
	fetcher artifacts.Fetcher
	baseURI string
}

// NewExportSource creates a source over gs:// or local export directories.
func NewExportSource(fetcher artifacts.Fetcher, baseURI string) *ExportSource {
	return &ExportSource{fetcher: fetcher, baseURI: strings.TrimSuffix(baseURI, "/")}
}

// Messages loads the user's export and filters by account and received time.
// The window is [since, until]; a zero bound leaves that side open.
func (s *ExportSource) Messages(ctx context.Context, userID, accountID string, since, until time.Time) ([]domain.RawMessage, error) {
	uri := fmt.Sprintf("%s/%s.jsonl", s.baseURI, userID)
	data, err := s.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("Messages: fetching export %s: %w", uri, err)
	}

	var msgs []domain.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var wm wireMessage
		if err := json.Unmarshal(raw, &wm); err != nil {
			return nil, fmt.Errorf("Messages: decoding %s line %d: %w", uri, line, err)
		}
		if wm.UserID == "" {
			wm.UserID = userID
		}
		if accountID != "" && wm.AccountID != accountID {
			continue
		}
		if !since.IsZero() && wm.ReceivedAt.Before(since) {
			continue
		}
		if !until.IsZero() && wm.ReceivedAt.After(until) {
			continue
		}

		msgs = append(msgs, domain.RawMessage{
			MessageID:  wm.MessageID,
			AccountID:  wm.AccountID,
			UserID:     wm.UserID,
			Sender:     wm.Sender,
			Subject:    wm.Subject,
			Body:       wm.Body,
			ReceivedAt: wm.ReceivedAt,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Messages: scanning export %s: %w", uri, err)
	}
	return msgs, nil
}
