// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `METASTORE_`, where `__` maps to “.”
     (e.g., `METASTORE_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, every `vault:<path>#<key>` string is swapped for the secret
it names, the tree is unmarshalled into strongly-typed structs, defaulted,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` calls `Load()` again and
swaps the pointer.

Instrumentation
---------------
  - DEBUG spans for root discovery, YAML read, and env overlay.
  - ERROR spans for YAML parse, secret lookup, unmarshal, and validation.
  - INFO span for the final “config loaded” with key highlights.
  - Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.

Notes
-----
  - `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/metastore` work from any sub-directory.
  - Secret values are never logged.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "METASTORE_"

const vaultPrefix = "vault:"

// secretTTL caches resolved secrets inside the Vault client between reloads.
const secretTTL = 5 * time.Minute

// SecretResolver looks up one key of a KV secret.  *vault.Client
// satisfies it.
type SecretResolver interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

var (
	current atomic.Pointer[Config]
	lastSrc atomic.Pointer[source]
)

type source struct {
	root    string
	secrets SecretResolver
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves METASTORE_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root directory and loads from it.  secrets may be nil
// when no value uses the `vault:` prefix.
func Load(ctx context.Context, secrets SecretResolver) (*Config, error) {
	return LoadDir(ctx, rootDir(), secrets)
}

// LoadDir reads .env, YAML, env overrides, and secrets under root, then
// validates and caches the result.
func LoadDir(ctx context.Context, root string, secrets SecretResolver) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: METASTORE_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.applyDefaults()
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	lastSrc.Store(&source{root: root, secrets: secrets})
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"driver", cfg.Database.Driver,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every `vault:<path>#<key>` leaf in k.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets SecretResolver) error {
	for _, name := range k.Keys() {
		s, ok := k.Get(name).(string)
		if !ok || !strings.HasPrefix(s, vaultPrefix) {
			continue
		}
		path, key, ok := strings.Cut(strings.TrimPrefix(s, vaultPrefix), "#")
		if !ok || path == "" || key == "" {
			return fmt.Errorf("%s: secret reference must be vault:<path>#<key>", name)
		}
		if secrets == nil {
			return fmt.Errorf("%s: secret reference but no vault client", name)
		}
		val, err := secrets.GetKV(ctx, path, key, secretTTL)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := k.Set(name, val); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		zap.S().Debugw("config secret resolved", "key", name, "path", path)
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the last loaded Config, or nil before the first Load.
func Get() *Config { return current.Load() }

// Reload re-reads the sources of the last successful load.
func Reload(ctx context.Context) error {
	src := lastSrc.Load()
	if src == nil {
		_, err := Load(ctx, nil)
		return err
	}
	_, err := LoadDir(ctx, src.root, src.secrets)
	return err
}
