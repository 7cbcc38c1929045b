package config

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid directory type",
			mutate:  func(c *Config) { c.Directory.Type = 5 },
			wantErr: true,
		},
		{
			name: "authenticated type requires credentials",
			mutate: func(c *Config) {
				c.Directory.Type = 1
			},
			wantErr: true,
		},
		{
			name: "authenticated type with credentials is valid",
			mutate: func(c *Config) {
				c.Directory.Type = 1
				c.Directory.Username = "user"
				c.Directory.Password = "pass"
			},
			wantErr: false,
		},
		{
			name:    "empty listen address",
			mutate:  func(c *Config) { c.Listen.Address = "" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
