// internal/config/model.go
//
// Typed configuration model for metastore.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `.env`                             – dotenv values,
//   - `conf/global.yaml`                          – primary static file,
//   - `METASTORE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through a SecretResolver *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   - Zero durations and sizes are replaced by applyDefaults after
//     unmarshal; validation runs on the defaulted tree.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The DSN is kept in YAML so operators can tweak host, port, or flags
// without touching Vault.  The password is normally a `vault:` reference
// and is injected into the DSN at connect time.
type Database struct {
	Driver          string        `koanf:"driver"            validate:"required,oneof=mysql sqlite3"`
	DSN             string        `koanf:"dsn"               validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
	ConnectRetries  int           `koanf:"connect_retries"   validate:"gte=0"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

//
// Metadata section
//

// Metadata tunes list pagination.
type Metadata struct {
	PageSize    int `koanf:"page_size"     validate:"gte=0,ltefield=MaxPageSize"`
	MaxPageSize int `koanf:"max_page_size" validate:"gte=0"`
}

//
// Audit section
//

// Audit sizes the notification buffer.  GeoIPDB is an optional MaxMind
// City database used to enrich events with the caller's location.
type Audit struct {
	Buffer  int    `koanf:"buffer"   validate:"gte=0"`
	GeoIPDB string `koanf:"geoip_db"`
}

//
// Log section
//

// Log selects the minimum level written to the log file.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // METASTORE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
//
// Policy maps action names (e.g., `metadata:index:all_projects`) to rule
// expressions and overrides the built-in defaults one action at a time.
type Config struct {
	HTTP     HTTP              `koanf:"http"`
	Database Database          `koanf:"database"`
	Metadata Metadata          `koanf:"metadata"`
	Audit    Audit             `koanf:"audit"`
	Log      Log               `koanf:"log"`
	Policy   map[string]string `koanf:"policy"`
	Paths    Paths             `koanf:"-"`
}

// applyDefaults fills zero values.
func (c *Config) applyDefaults() {
	setDur := func(d *time.Duration, def time.Duration) {
		if *d == 0 {
			*d = def
		}
	}
	setInt := func(n *int, def int) {
		if *n == 0 {
			*n = def
		}
	}

	setDur(&c.HTTP.ReadTimeout, 10*time.Second)
	setDur(&c.HTTP.WriteTimeout, 15*time.Second)
	setDur(&c.HTTP.IdleTimeout, 60*time.Second)
	setDur(&c.HTTP.ShutdownTimeout, 15*time.Second)

	setInt(&c.Database.MaxOpenConns, 15)
	setInt(&c.Database.MaxIdleConns, 5)
	setDur(&c.Database.ConnMaxLifetime, 30*time.Minute)

	setInt(&c.Metadata.MaxPageSize, 1000)
	setInt(&c.Metadata.PageSize, 20)

	setInt(&c.Audit.Buffer, 1024)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
