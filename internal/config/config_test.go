package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.DatasetCSV != "data/repos.csv" {
		t.Errorf("DatasetCSV = %q, want data/repos.csv", cfg.DatasetCSV)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.TopLanguages != 10 {
		t.Errorf("TopLanguages = %d, want 10", cfg.TopLanguages)
	}
	if cfg.CVFolds != 5 {
		t.Errorf("CVFolds = %d, want 5", cfg.CVFolds)
	}
	if cfg.ServerModel != "stacking" {
		t.Errorf("ServerModel = %q, want stacking", cfg.ServerModel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATASET_CSV", "/tmp/other.csv")
	t.Setenv("SEED", "7")
	t.Setenv("DATASET_TEST_FRACTION", "0.3")
	t.Setenv("TRAINER_RETUNE", "true")
	t.Setenv("TRAINER_BASELINES", "not-a-bool")

	cfg := Load()
	if cfg.DatasetCSV != "/tmp/other.csv" {
		t.Errorf("DatasetCSV = %q", cfg.DatasetCSV)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Seed)
	}
	if cfg.TestFraction != 0.3 {
		t.Errorf("TestFraction = %v, want 0.3", cfg.TestFraction)
	}
	if !cfg.Retune {
		t.Error("Retune should be true")
	}
	if !cfg.RunBaselines {
		t.Error("malformed bool should fall back to default true")
	}
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("METADATA_DATABASE_URL", "postgres://fallback/db")
	cfg := Load()
	if cfg.DatabaseURL != "postgres://fallback/db" {
		t.Errorf("DatabaseURL = %q, want fallback value", cfg.DatabaseURL)
	}
}
