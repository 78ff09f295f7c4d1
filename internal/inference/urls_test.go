package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
)

func urlConfig() *config.Config {
	cfg := config.Default()
	cfg.Project.ID = "finance-prod"
	cfg.GCP.Region = "us-central1"
	cfg.ML.Inference.FunctionName = "ml-inference-function"
	return cfg
}

func TestResolveFunctionURL_ExplicitConfigWins(t *testing.T) {
	t.Setenv(FunctionURLEnv, "https://env.example.com/fn")

	cfg := urlConfig()
	cfg.ML.Inference.FunctionURL = "https://config.example.com/fn"

	assert.Equal(t, "https://config.example.com/fn", ResolveFunctionURL(cfg))
}

func TestResolveFunctionURL_EnvBeatsConstructed(t *testing.T) {
	t.Setenv(FunctionURLEnv, "https://env.example.com/fn")

	assert.Equal(t, "https://env.example.com/fn", ResolveFunctionURL(urlConfig()))
}

func TestResolveFunctionURL_Constructed(t *testing.T) {
	t.Setenv(FunctionURLEnv, "")

	assert.Equal(t,
		"https://us-central1-finance-prod.cloudfunctions.net/ml-inference-function",
		ResolveFunctionURL(urlConfig()))
}
