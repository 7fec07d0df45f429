package storage

import (
	"path/filepath"
	"testing"

	"flowguard/internal/models"
)

func TestFactory(t *testing.T) {
	factory := NewFactory()

	t.Run("GetSupportedProviders", func(t *testing.T) {
		providers := factory.GetSupportedProviders()
		expected := []string{"json", "memory", "postgres", "sqlite"}

		if len(providers) != len(expected) {
			t.Errorf("Expected %d providers, got %d", len(expected), len(providers))
		}

		for i, provider := range expected {
			if i >= len(providers) || providers[i] != provider {
				t.Errorf("Expected provider %s at index %d, got %v", provider, i, providers)
			}
		}
	})

	t.Run("ValidateConfig", func(t *testing.T) {
		tests := []struct {
			name      string
			config    models.StorageConfig
			expectErr bool
		}{
			{
				name: "valid json config",
				config: models.StorageConfig{
					Type: "json",
					Path: "/tmp/test.json",
				},
				expectErr: false,
			},
			{
				name: "json config missing path",
				config: models.StorageConfig{
					Type: "json",
				},
				expectErr: true,
			},
			{
				name: "valid memory config",
				config: models.StorageConfig{
					Type: "memory",
				},
				expectErr: false,
			},
			{
				name: "valid postgres config",
				config: models.StorageConfig{
					Type: "postgres",
					Database: models.DatabaseConfig{
						DSN: "postgres://localhost/flowguard",
					},
				},
				expectErr: false,
			},
			{
				name: "postgres config missing dsn",
				config: models.StorageConfig{
					Type: "postgres",
				},
				expectErr: true,
			},
			{
				name: "sqlite config missing dsn",
				config: models.StorageConfig{
					Type: "sqlite",
				},
				expectErr: true,
			},
			{
				name: "unsupported type",
				config: models.StorageConfig{
					Type: "cassandra",
				},
				expectErr: true,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := factory.ValidateConfig(tt.config)
				if tt.expectErr && err == nil {
					t.Error("expected error, got nil")
				}
				if !tt.expectErr && err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			})
		}
	})

	t.Run("CreateMemory", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("failed to create memory storage: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*MemoryStorage); !ok {
			t.Errorf("expected *MemoryStorage, got %T", s)
		}
	})

	t.Run("CreateJSON", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{
			Type: "json",
			Path: filepath.Join(t.TempDir(), "limiters.json"),
		})
		if err != nil {
			t.Fatalf("failed to create json storage: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*JSONStorage); !ok {
			t.Errorf("expected *JSONStorage, got %T", s)
		}
	})

	t.Run("CreateSQLite", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{
			Type: "sqlite",
			Database: models.DatabaseConfig{
				DSN: filepath.Join(t.TempDir(), "test.db"),
			},
		})
		if err != nil {
			t.Fatalf("failed to create sqlite storage: %v", err)
		}
		defer s.Close()
	})

	t.Run("CreateUnsupported", func(t *testing.T) {
		_, err := factory.Create(models.StorageConfig{Type: "cassandra"})
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
