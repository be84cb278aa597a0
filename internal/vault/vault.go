// internal/vault/vault.go
//
// Vault client wrapper used to resolve `vault:` configuration values.
//
// Context
// -------
//   - Wraps the HashiCorp Vault Go SDK with background token renewal and a
//     per-key TTL cache over KV-v2 reads.
//   - The only consumer is internal/config, which calls GetKV for every
//     `vault:<path>#<key>` string before unmarshalling.  The client
//     satisfies config.SecretResolver.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, log)             // during boot, if Enabled().
//  2. pw,  err := cli.GetKV(ctx, path, key, ttl)  // via config.Load.
//
// Environment expectations
// ------------------------
//   - VAULT_ADDR   scheme and host of the Vault server.
//   - VAULT_TOKEN  initial token.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned when the secret exists but lacks the key.
var ErrKeyNotFound = errors.New("vault: key not found in secret")

// kvReader is the slice of *vault.KVv2 GetKV needs.
type kvReader interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
}

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	kv  func(mount string) kvReader
	log *zap.SugaredLogger
	now func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cached // path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// Enabled reports whether VAULT_ADDR is set.  Boot code skips the client
// entirely otherwise.
func Enabled() bool { return os.Getenv("VAULT_ADDR") != "" }

// New constructs a client from the VAULT_* environment and starts the
// token-renewal loop, which stops with ctx.
func New(ctx context.Context, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{
		api:   apiCli,
		kv:    func(mount string) kvReader { return apiCli.KVv2(mount) },
		log:   log,
		now:   time.Now,
		cache: make(map[string]cached),
	}
	go c.renewLoop(ctx)
	return c, nil
}

// GetKV fetches a single string key from a KV-v2 secret.  secretPath is
// `<mount>/<path>`.  If ttl > 0 the result is cached for that long.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("vault: secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[canonical]
		c.cacheMu.RUnlock()
		if ok && c.now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.kv(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s#%s", ErrKeyNotFound, secretPath, key)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: c.now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.log.Warnw("vault token renew failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}
		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token is not renewable, sleeping")
			backoff(ctx, time.Hour)
			continue
		}
		c.watch(ctx, sec)
		backoff(ctx, 15*time.Second)
	}
}

// watch drives one lifetime watcher until it ends or ctx is cancelled.
func (c *Client) watch(ctx context.Context, sec *vault.Secret) {
	w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: sec,
		Grace:  15 * time.Second,
	})
	if err != nil {
		c.log.Warnw("vault watcher init failed", "err", err)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(strings.Trim(p, "/"), "/")
	return mount, rel
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
