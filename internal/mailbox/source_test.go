package mailbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	data, ok := f.files[uri]
	if !ok {
		return nil, fmt.Errorf("fetch %s: not found", uri)
	}
	return data, nil
}

const exportLines = `{"message_id":"m1","account_id":"gmail_a@example.com","sender":"alerts@bank.com","subject":"Charge","body":"b1","received_at":"2024-03-01T10:00:00Z"}

{"message_id":"m2","account_id":"gmail_b@example.com","sender":"alerts@bank.com","subject":"Charge","body":"b2","received_at":"2024-03-02T10:00:00Z"}
{"message_id":"m3","account_id":"gmail_a@example.com","sender":"alerts@bank.com","subject":"Charge","body":"b3","received_at":"2024-02-01T10:00:00Z"}
`

func TestExportSource_FiltersAccountAndTime(t *testing.T) {
	src := NewExportSource(&fakeFetcher{files: map[string][]byte{
		"gs://exports/u1.jsonl": []byte(exportLines),
	}}, "gs://exports/")

	since := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	msgs, err := src.Messages(context.Background(), "u1", "gmail_a@example.com", since, time.Time{})
	require.NoError(t, err)

	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "u1", msgs[0].UserID)
}

func TestExportSource_UpperBound(t *testing.T) {
	src := NewExportSource(&fakeFetcher{files: map[string][]byte{
		"gs://exports/u1.jsonl": []byte(exportLines),
	}}, "gs://exports")

	// The batch window closes at the request time; messages delivered
	// after it belong to the next batch.
	until := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs, err := src.Messages(context.Background(), "u1", "", time.Time{}, until)
	require.NoError(t, err)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "m3", msgs[1].MessageID)
}

func TestExportSource_NoFilters(t *testing.T) {
	src := NewExportSource(&fakeFetcher{files: map[string][]byte{
		"gs://exports/u1.jsonl": []byte(exportLines),
	}}, "gs://exports")

	msgs, err := src.Messages(context.Background(), "u1", "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestExportSource_BadLine(t *testing.T) {
	src := NewExportSource(&fakeFetcher{files: map[string][]byte{
		"gs://exports/u1.jsonl": []byte("{not json}\n"),
	}}, "gs://exports")

	_, err := src.Messages(context.Background(), "u1", "", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestExportSource_MissingExport(t *testing.T) {
	src := NewExportSource(&fakeFetcher{files: map[string][]byte{}}, "gs://exports")

	_, err := src.Messages(context.Background(), "u1", "", time.Time{}, time.Time{})
	assert.Error(t, err)
}
