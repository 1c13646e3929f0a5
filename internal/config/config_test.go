package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MARYCOMPLEX/food-agent/internal/usecase/scoring"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		LLM:      LLMConfig{APIKey: "test-key"},
		Source:   SourceConfig{BaseURL: "http://localhost:8501"},
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_MissingLLMKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing llm api key")
	}
}

func TestValidate_MissingSourceURL(t *testing.T) {
	cfg := validConfig()
	cfg.Source.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing source base url")
	}
}

func TestValidate_TemperatureRange(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Temperature = 2.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range temperature")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 300 {
		t.Errorf("expected WriteTimeoutSec=300, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.TurnStore.Path != "data/foodagent.db" {
		t.Errorf("expected default turn store path, got %q", cfg.TurnStore.Path)
	}
	if cfg.Source.TimeoutSec != 20 {
		t.Errorf("expected Source.TimeoutSec=20, got %d", cfg.Source.TimeoutSec)
	}
	if cfg.Stream.HeartbeatSec != 15 {
		t.Errorf("expected HeartbeatSec=15, got %d", cfg.Stream.HeartbeatSec)
	}
	if cfg.Stream.ContextTTLHours != 24 {
		t.Errorf("expected ContextTTLHours=24, got %d", cfg.Stream.ContextTTLHours)
	}
	if cfg.Scoring != scoring.DefaultPolicy() {
		t.Errorf("expected default scoring policy, got %+v", cfg.Scoring)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	policy := scoring.DefaultPolicy()
	policy.TopUnits = 5

	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{ReadinessTimeout: 15},
		TurnStore: TurnStoreConfig{Path: "/var/lib/foodagent/turns.db"},
		Scoring:   policy,
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.TurnStore.Path != "/var/lib/foodagent/turns.db" {
		t.Errorf("expected custom turn store path, got %q", cfg.TurnStore.Path)
	}
	if cfg.Scoring.TopUnits != 5 {
		t.Errorf("expected TopUnits=5, got %d", cfg.Scoring.TopUnits)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOODAGENT_TEST_KEY", "sk-abc")

	in := []byte("api_key: ${FOODAGENT_TEST_KEY}\nmodel: ${FOODAGENT_TEST_MODEL:-Qwen/Qwen2.5-72B-Instruct}\n")
	out := string(expandEnvVars(in))

	want := "api_key: sk-abc\nmodel: Qwen/Qwen2.5-72B-Instruct\n"
	if out != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", out, want)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: 9090
database:
  addrs: ["localhost:6379"]
llm:
  api_key: sk-test
  temperature: 0.3
source:
  base_url: http://localhost:8501
search:
  max_units: 12
scoring:
  strong_identity_coeff: 4.0
`
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("temperature = %g, want 0.3", cfg.LLM.Temperature)
	}
	if cfg.Search.MaxUnits != 12 {
		t.Errorf("max units = %d, want 12", cfg.Search.MaxUnits)
	}
	if cfg.Scoring.StrongIdentityCoeff != 4.0 {
		t.Errorf("strong coeff = %g, want 4.0", cfg.Scoring.StrongIdentityCoeff)
	}
	// Partial scoring config is not replaced by the defaults.
	if cfg.Scoring.TopUnits != 0 {
		t.Errorf("top units = %d, want 0", cfg.Scoring.TopUnits)
	}
}
