package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid delegated config",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
			},
			wantErr: false,
		},
		{
			name: "valid owner config",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PrivateKeyHex: "deadbeef"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
			},
			wantErr: false,
		},
		{
			name: "missing coordinator base",
			config: Config{
				Identity: IdentityConfig{PublicKeyHex: "abc123"},
				Journal:  JournalConfig{Path: "app_db_merged.db3"},
			},
			wantErr: true,
			errMsg:  "coordinator.base is required",
		},
		{
			name: "missing identity",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
			},
			wantErr: true,
			errMsg:  "identity.public_key or identity.private_key is required",
		},
		{
			name: "negative desired threads",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
				Mining:      MiningConfig{DesiredThreads: -1},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
			},
			wantErr: true,
			errMsg:  "mining.desired_threads must be >= 0",
		},
		{
			name: "missing journal path",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
			},
			wantErr: true,
			errMsg:  "journal.path is required",
		},
		{
			name: "api enabled without bind",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
				API:         APIConfig{Enabled: true},
			},
			wantErr: true,
			errMsg:  "api.bind is required when api is enabled",
		},
		{
			name: "webhook enabled without url",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
				Webhook:     WebhookConfig{Enabled: true},
			},
			wantErr: true,
			errMsg:  "webhook.url is required when webhook is enabled",
		},
		{
			name: "newrelic enabled without license key",
			config: Config{
				Coordinator: CoordinatorConfig{Base: "pool.tos.network"},
				Identity:    IdentityConfig{PublicKeyHex: "abc123"},
				Journal:     JournalConfig{Path: "app_db_merged.db3"},
				NewRelic:    NewRelicConfig{Enabled: true},
			},
			wantErr: true,
			errMsg:  "newrelic.license_key is required when newrelic is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				} else if tt.errMsg != "" && err.Error() != tt.errMsg {
					t.Errorf("error = %q, want %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOwner(t *testing.T) {
	delegated := &Config{Identity: IdentityConfig{PublicKeyHex: "abc"}}
	if delegated.Owner() {
		t.Error("config with only a public key should not be Owner")
	}

	owner := &Config{Identity: IdentityConfig{PrivateKeyHex: "abc"}}
	if !owner.Owner() {
		t.Error("config with a private key should be Owner")
	}
}

func TestLoadWithTempConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
coordinator:
  base: "pool.tos.network"
  unsecure: false

identity:
  public_key: "abc123"

mining:
  desired_threads: 4
  cutoff_buffer: 2s

journal:
  path: "app_db_merged.db3"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Coordinator.Base != "pool.tos.network" {
		t.Errorf("Coordinator.Base = %s, want pool.tos.network", cfg.Coordinator.Base)
	}
	if cfg.Mining.DesiredThreads != 4 {
		t.Errorf("Mining.DesiredThreads = %d, want 4", cfg.Mining.DesiredThreads)
	}
	if cfg.Mining.CutoffBuffer != 2*time.Second {
		t.Errorf("Mining.CutoffBuffer = %v, want 2s", cfg.Mining.CutoffBuffer)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
coordinator:
  base: "pool.tos.network"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() should return error when identity is missing")
	}
}

func TestLoadNonexistentConfig(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for non-existent config with no identity")
	}
}
