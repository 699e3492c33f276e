package config

const (
	defaultWorkspaceDir             = "~/.local/share/shelfscan/workspace"
	defaultLogDir                   = "~/.local/share/shelfscan/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultDetectorTimeoutSeconds   = 60
	defaultDetectorConfidence       = 0.5
	defaultVisionBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultVisionModel              = "google/gemini-3-flash-preview"
	defaultVisionTimeoutSeconds     = 60
	defaultVisionRetryAttempts      = 3
	defaultCatalogMaxResults        = 50
	defaultCatalogTimeoutSeconds    = 30
	defaultCatalogRetryAttempts     = 3
	defaultCatalogMinIntervalMS     = 250
	defaultPreFilterMaxCandidates   = 10
	defaultPreFilterMinScore        = 0.35
	defaultPipelineWorkers          = 4
	defaultPipelineStageTimeoutSecs = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
		},
		Detector: Detector{
			TimeoutSeconds:      defaultDetectorTimeoutSeconds,
			ConfidenceThreshold: defaultDetectorConfidence,
		},
		Vision: Vision{
			BaseURL:        defaultVisionBaseURL,
			Model:          defaultVisionModel,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
			RetryAttempts:  defaultVisionRetryAttempts,
		},
		Catalog: Catalog{
			MaxResults:           defaultCatalogMaxResults,
			TimeoutSeconds:       defaultCatalogTimeoutSeconds,
			RetryAttempts:        defaultCatalogRetryAttempts,
			MinRequestIntervalMS: defaultCatalogMinIntervalMS,
		},
		PreFilter: PreFilter{
			MaxCandidates: defaultPreFilterMaxCandidates,
			MinScore:      defaultPreFilterMinScore,
		},
		Pipeline: Pipeline{
			Workers:             defaultPipelineWorkers,
			StageTimeoutSeconds: defaultPipelineStageTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
