package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvDefaultsAndFallbacks(t *testing.T) {
	t.Setenv("SMTP_USERNAME", "me@example.com")
	t.Setenv("SMTP_USER", "")
	t.Setenv("EMAIL_FROM", "")
	t.Setenv("EMAIL_TO", "")
	t.Setenv("TMDB_HTTP_TIMEOUT", "2m")
	t.Setenv("EMAIL_MAX_SIZE_MB", "not-a-number")

	env := LoadEnv()
	if env.SMTP.User != "me@example.com" || env.Email.From != "me@example.com" || env.Email.To != "me@example.com" {
		t.Fatalf("expected legacy SMTP_USERNAME to fill user/from/to, got %+v %+v", env.SMTP, env.Email)
	}
	if env.TMDb.HTTPTimeout != 2*time.Minute {
		t.Fatalf("TMDb timeout = %v", env.TMDb.HTTPTimeout)
	}
	if env.Email.MaxSizeMB != 40 {
		t.Fatalf("invalid EMAIL_MAX_SIZE_MB should fall back to 40, got %d", env.Email.MaxSizeMB)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("POSTERDIGEST_TEST_A=from-file\nPOSTERDIGEST_TEST_B=from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("POSTERDIGEST_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("POSTERDIGEST_TEST_B") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("POSTERDIGEST_TEST_A"); got != "from-env" {
		t.Fatalf("existing variable overridden: %q", got)
	}
	if got := os.Getenv("POSTERDIGEST_TEST_B"); got != "from-file" {
		t.Fatalf("variable not loaded: %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}
