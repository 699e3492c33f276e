package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelfscan/internal/config"
)

func TestLoadDefaultsUseEnvKeysAndExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHELFSCAN_VISION_API_KEY", "vision-key")
	t.Setenv("SHELFSCAN_CATALOG_API_KEY", "catalog-key")
	t.Setenv("SHELFSCAN_CATALOG_API_SECRET", "catalog-secret")

	configPath := filepath.Join(tempHome, "shelfscan.toml")
	if err := os.WriteFile(configPath, []byte("[catalog]\nbase_url = \"https://catalog.example.com/api\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" || !exists {
		t.Fatalf("expected resolved existing config, got %q exists=%v", resolved, exists)
	}

	wantWorkspace := filepath.Join(tempHome, ".local", "share", "shelfscan", "workspace")
	if cfg.Paths.WorkspaceDir != wantWorkspace {
		t.Fatalf("unexpected workspace dir: got %q want %q", cfg.Paths.WorkspaceDir, wantWorkspace)
	}
	if cfg.Vision.APIKey != "vision-key" {
		t.Fatalf("expected vision key from env, got %q", cfg.Vision.APIKey)
	}
	if cfg.Catalog.APIKey != "catalog-key" || cfg.Catalog.APISecret != "catalog-secret" {
		t.Fatalf("expected catalog credentials from env")
	}
	if cfg.Catalog.MaxResults != 50 {
		t.Fatalf("unexpected catalog max results: %d", cfg.Catalog.MaxResults)
	}
	if cfg.PreFilter.MaxCandidates != 10 {
		t.Fatalf("unexpected prefilter max candidates: %d", cfg.PreFilter.MaxCandidates)
	}
	if cfg.PreFilter.MinScore != 0.35 {
		t.Fatalf("unexpected prefilter min score: %f", cfg.PreFilter.MinScore)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("unexpected worker count: %d", cfg.Pipeline.Workers)
	}
	if cfg.Detector.ConfidenceThreshold != 0.5 {
		t.Fatalf("unexpected detector threshold: %f", cfg.Detector.ConfidenceThreshold)
	}
	if cfg.DatabasePath() != filepath.Join(wantWorkspace, "shelfscan.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadRejectsMissingVisionKey(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHELFSCAN_VISION_API_KEY", "")
	t.Setenv("SHELFSCAN_CATALOG_API_KEY", "k")
	t.Setenv("SHELFSCAN_CATALOG_API_SECRET", "s")

	configPath := filepath.Join(tempHome, "shelfscan.toml")
	if err := os.WriteFile(configPath, []byte("[catalog]\nbase_url = \"https://catalog.example.com\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for missing vision api key")
	}
	if !strings.Contains(err.Error(), "vision.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHELFSCAN_VISION_API_KEY", "v")
	t.Setenv("SHELFSCAN_CATALOG_API_KEY", "k")
	t.Setenv("SHELFSCAN_CATALOG_API_SECRET", "s")

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "detector threshold",
			body: "[catalog]\nbase_url = \"https://c.example.com\"\n[detector]\nconfidence_threshold = 1.5\n",
			want: "detector.confidence_threshold",
		},
		{
			name: "prefilter floor",
			body: "[catalog]\nbase_url = \"https://c.example.com\"\n[prefilter]\nmin_score = 2.0\n",
			want: "prefilter.min_score",
		},
		{
			name: "log format",
			body: "[catalog]\nbase_url = \"https://c.example.com\"\n[logging]\nformat = \"xml\"\n",
			want: "logging.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "shelfscan.toml")
			if err := os.WriteFile(configPath, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[catalog]") {
		t.Fatal("expected sample to contain catalog section")
	}
}
