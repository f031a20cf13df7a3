package models

import (
	"strings"
	"time"
)

// Permissions understood by the mission API.
const (
	PermMissionsRead  = "missions:read"
	PermMissionsWrite = "missions:write"
	PermMissionsAdmin = "missions:admin"
)

// ApiClient is a game backend or tool allowed to call the API.
type ApiClient struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ApiKey      string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

// HasPermission checks a permission, honouring "missions:*" and "*".
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		switch {
		case perm == "*", perm == required:
			return true
		case strings.HasSuffix(perm, ":*"):
			if strings.HasPrefix(required, strings.TrimSuffix(perm, "*")) {
				return true
			}
		}
	}

	return false
}

// MaskedApiKey returns a log-safe prefix of the key.
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey keeps the first 8 characters of a key.
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
