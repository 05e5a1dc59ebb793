package config

import "testing"

func TestDefaultAppliesEveryDefault(t *testing.T) {
	c := Default()

	if c.Breaker.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold != 3 {
		t.Errorf("SuccessThreshold = %d, want 3", c.Breaker.SuccessThreshold)
	}
	if c.Breaker.CoolDownMs != 60000 {
		t.Errorf("CoolDownMs = %d, want 60000", c.Breaker.CoolDownMs)
	}
	if c.Monitor.DriftThreshold != 0.25 {
		t.Errorf("DriftThreshold = %v, want 0.25", c.Monitor.DriftThreshold)
	}
	if c.Frame.MaxSymbols != 12 {
		t.Errorf("MaxSymbols = %d, want 12", c.Frame.MaxSymbols)
	}
	if c.Frame.MinSymbols != 2 {
		t.Errorf("MinSymbols = %d, want 2", c.Frame.MinSymbols)
	}
	if c.AuditPath == "" {
		t.Error("AuditPath should have a default")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_FAILURE_THRESHOLD", "9")
	t.Setenv("SENTINEL_DRIFT_THRESHOLD", "0.5")

	c := &Config{}
	c.applyEnvOverrides()

	if c.Breaker.FailureThreshold != 9 {
		t.Errorf("FailureThreshold = %d, want 9", c.Breaker.FailureThreshold)
	}
	if c.Monitor.DriftThreshold != 0.5 {
		t.Errorf("DriftThreshold = %v, want 0.5", c.Monitor.DriftThreshold)
	}
	// everything else still gets its default
	if c.Breaker.SuccessThreshold != 3 {
		t.Errorf("SuccessThreshold = %d, want default 3", c.Breaker.SuccessThreshold)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Error("LoadConfig with a missing file should return an error")
	}
}

func TestGetIsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Error("Get() should return the same instance across calls")
	}
}
