// Package credentials builds the per-request pool of provider credentials.
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultPriority is used when a configured credential omits its priority.
const DefaultPriority = 100

// Owner identifies who pays the provider for calls made with a credential.
type Owner string

const (
	OwnerUser     Owner = "user"
	OwnerOperator Owner = "operator"
)

// Credential is one physical provider key. Credentials are immutable for the
// lifetime of a request.
type Credential struct {
	ID                string
	Provider          string
	APIKey            string
	Endpoint          string
	AllowedModels     map[string]bool
	Owner             Owner
	Priority          int
	RateLimitOverride int // requests per minute, 0 means unlimited
}

// Allows reports whether the credential may be used with the given model.
func (c Credential) Allows(modelID string) bool {
	if len(c.AllowedModels) == 0 {
		return true
	}
	return c.AllowedModels[modelID]
}

// Fingerprint returns a short, non-reversible identifier for the key.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.APIKey))
	return hex.EncodeToString(sum[:4])
}

// Entry is the configuration shape of a credential, shared by the config
// file and inbound requests.
type Entry struct {
	Provider          string   `mapstructure:"provider" json:"provider"`
	APIKey            string   `mapstructure:"api_key" json:"api_key"`
	Endpoint          string   `mapstructure:"endpoint" json:"endpoint,omitempty"`
	AllowedModels     []string `mapstructure:"allowed_models" json:"allowed_models,omitempty"`
	Priority          *int     `mapstructure:"priority" json:"priority,omitempty"`
	RateLimitOverride int      `mapstructure:"rate_limit" json:"rate_limit,omitempty"`
}

// FromEntries converts configuration entries into untagged credentials.
// Entries without a priority get DefaultPriority; an explicit 0 is kept.
func FromEntries(entries []Entry) []Credential {
	out := make([]Credential, 0, len(entries))
	for _, e := range entries {
		c := Credential{
			Provider:          e.Provider,
			APIKey:            e.APIKey,
			Endpoint:          e.Endpoint,
			Priority:          DefaultPriority,
			RateLimitOverride: e.RateLimitOverride,
		}
		if e.Priority != nil {
			c.Priority = *e.Priority
		}
		if len(e.AllowedModels) > 0 {
			c.AllowedModels = make(map[string]bool, len(e.AllowedModels))
			for _, m := range e.AllowedModels {
				c.AllowedModels[m] = true
			}
		}
		out = append(out, c)
	}
	return out
}

// BuildPool merges operator and caller credentials into a single pool, tagging
// each with its owner. Priorities are taken as given. Invalid entries are dropped and logged. Entries are
// never deduplicated: every physical key is its own pool entry.
func BuildPool(operator, caller []Credential, logger *slog.Logger) []Credential {
	pool := make([]Credential, 0, len(operator)+len(caller))
	pool = appendValid(pool, operator, OwnerOperator, logger)
	pool = appendValid(pool, caller, OwnerUser, logger)
	return pool
}

func appendValid(pool, creds []Credential, owner Owner, logger *slog.Logger) []Credential {
	for i, c := range creds {
		if err := validate(c); err != nil {
			logger.Warn("dropping credential",
				"owner", owner,
				"index", i,
				"provider", c.Provider,
				"error", err,
			)
			continue
		}

		c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
		c.Owner = owner
		if c.RateLimitOverride < 0 {
			c.RateLimitOverride = 0
		}
		c.ID = fmt.Sprintf("%s:%s:%d:%s", owner, c.Provider, len(pool), c.Fingerprint())
		pool = append(pool, c)
	}
	return pool
}

func validate(c Credential) error {
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("missing provider")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("missing api key")
	}
	if c.Priority < 0 {
		return fmt.Errorf("negative priority %d", c.Priority)
	}
	return nil
}
