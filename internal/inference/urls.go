package inference

import (
	"fmt"
	"os"

	"github.com/sdancy10/Financial-Tracker-Backend/internal/config"
)

// FunctionURLEnv overrides the inference Cloud Function URL when the config
// file leaves it unset.
const FunctionURLEnv = "ML_INFERENCE_FUNCTION_URL"

// ResolveFunctionURL picks the Cloud Function endpoint, in precedence order:
// explicit config value, then the environment override, then the URL
// constructed from region, project and function name. Resolved once at
// startup; the result is fixed for the process lifetime.
func ResolveFunctionURL(cfg *config.Config) string {
	if cfg.ML.Inference.FunctionURL != "" {
		return cfg.ML.Inference.FunctionURL
	}
	if v := os.Getenv(FunctionURLEnv); v != "" {
		return v
	}
	return fmt.Sprintf("https://%s-%s.cloudfunctions.net/%s",
		cfg.GCP.Region, cfg.Project.ID, cfg.ML.Inference.FunctionName)
}
