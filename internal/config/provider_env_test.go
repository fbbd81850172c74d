package config

import (
	"context"
	"os"
	"testing"
)

func TestEnvVarProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = NewEnvVarProvider()
}

func TestEnvVarProviderResolvesSetVariables(t *testing.T) {
	t.Setenv("FLOODFACTOR_TEST_SECRET_A", "alpha")
	t.Setenv("FLOODFACTOR_TEST_EMPTY", "")
	os.Unsetenv("FLOODFACTOR_TEST_MISSING")

	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(),
		[]string{"FLOODFACTOR_TEST_SECRET_A", "FLOODFACTOR_TEST_EMPTY", "FLOODFACTOR_TEST_MISSING"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned unexpected error: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("expected 2 results, got %d: %v", len(result), result)
	}
	if got := result["FLOODFACTOR_TEST_SECRET_A"]; got != "alpha" {
		t.Errorf("secret = %q, want %q", got, "alpha")
	}
	if got, ok := result["FLOODFACTOR_TEST_EMPTY"]; !ok || got != "" {
		t.Errorf("empty variable should resolve to empty string, got %q (present=%v)", got, ok)
	}
	if _, ok := result["FLOODFACTOR_TEST_MISSING"]; ok {
		t.Error("unset variable should be omitted")
	}
}

func TestEnvVarProviderNilKeys(t *testing.T) {
	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || len(result) != 0 {
		t.Errorf("expected empty non-nil map, got %v", result)
	}
}
