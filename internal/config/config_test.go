package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("project:\n  id: test-project\n"))
	require.NoError(t, err)

	assert.Equal(t, "test-project", cfg.Project.ID)
	assert.Equal(t, "cloud_function", cfg.ML.Inference.Mode)
	assert.Equal(t, "us-central1", cfg.GCP.Region)
	assert.Equal(t, 45, cfg.ML.Inference.TimeoutSeconds)
	assert.Equal(t, []string{"date", "description", "amount", "account_id", "user_id"}, cfg.Validation.RequiredFields)
	assert.Equal(t, []string{"pending", "processed", "failed"}, cfg.Validation.Statuses)
}

func TestParse_ExplicitValues(t *testing.T) {
	doc := `
project:
  id: prod
ml:
  inference:
    mode: vertex_ai
    timeout_seconds: 10
    confidence_threshold: 0.5
data:
  timezone: America/New_York
  default_currency: USD
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "vertex_ai", cfg.ML.Inference.Mode)
	assert.Equal(t, 10, cfg.ML.Inference.TimeoutSeconds)
	assert.Equal(t, 0.5, cfg.ML.Inference.ConfidenceThreshold)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestValidate_FailsFast(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown required field",
			doc:  "validation:\n  required_fields: [date, amount, flavor]\n",
		},
		{
			name: "unknown status",
			doc:  "validation:\n  statuses: [pending, processed, archived]\n",
		},
		{
			name: "unknown inference mode",
			doc:  "ml:\n  inference:\n    mode: carrier_pigeon\n",
		},
		{
			name: "bad timezone",
			doc:  "data:\n  timezone: Mars/Olympus_Mons\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
