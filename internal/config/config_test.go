package config

import (
	"testing"
	"time"
)

func TestLoadKioskDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("remote.url", "https://project.example.co/")
	configViper.Set("remote.api_key", "anon-key")

	cfg, err := Load(configViper, ModeKiosk)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.Remote.URL != "https://project.example.co" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.Remote.URL)
	}
	if cfg.Sync.FlushInterval != 30*time.Second {
		t.Fatalf("unexpected flush interval %s", cfg.Sync.FlushInterval)
	}
	if cfg.DatabasePath != "kiosk.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
}

func TestLoadRejectsInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		values map[string]any
	}{
		{
			name:   "postgrest without url",
			mode:   ModeKiosk,
			values: map[string]any{"remote.api_key": "key"},
		},
		{
			name:   "postgres without dsn",
			mode:   ModeKiosk,
			values: map[string]any{"remote.backend": BackendPostgres},
		},
		{
			name:   "unknown backend",
			mode:   ModeKiosk,
			values: map[string]any{"remote.backend": "firestore"},
		},
		{
			name:   "dashboard without signing secret",
			mode:   ModeDashboard,
			values: map[string]any{"remote.url": "https://x", "remote.api_key": "key"},
		},
		{
			name: "bad timezone",
			mode: ModeKiosk,
			values: map[string]any{
				"remote.url":     "https://x",
				"remote.api_key": "key",
				"timezone":       "Mars/Olympus",
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper, testCase.mode); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadParsesAdminLists(t *testing.T) {
	configViper := NewViper()
	configViper.Set("remote.url", "https://x")
	configViper.Set("remote.api_key", "key")
	configViper.Set("admin.signing_secret", "secret")
	configViper.Set("admin.emails", " Boss@Example.com, ,ops@example.com ")

	cfg, err := Load(configViper, ModeDashboard)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.Admin.Emails) != 2 || cfg.Admin.Emails[0] != "boss@example.com" {
		t.Fatalf("unexpected admin emails %#v", cfg.Admin.Emails)
	}
}
