package models

import (
	"time"
)

// Credential is the stored OAuth2 credential for one user identity.
// Identity (the verified account email) is the primary key; there is at
// most one record per identity.
type Credential struct {
	Identity     string    `json:"identity" dynamodbav:"identity"`
	AccessToken  string    `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" dynamodbav:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry" dynamodbav:"expiry"`
	LastUsed     time.Time `json:"last_used" dynamodbav:"last_used"`

	// IDToken is the OpenID Connect token returned alongside the access
	// token on exchange. It names the account and is never persisted.
	IDToken string `json:"-" dynamodbav:"-"`
}

func (c *Credential) GetPK() string {
	return "CREDENTIAL!" + c.Identity
}

func (c *Credential) GetSK() string {
	return "METADATA"
}

// ValidAt reports whether the access token is still usable at the given
// instant, leaving buffer headroom so a token judged valid here does not
// expire before the downstream request completes.
func (c *Credential) ValidAt(now time.Time, buffer time.Duration) bool {
	return now.Before(c.Expiry.Add(-buffer))
}

// MergeRefreshToken carries the previously stored refresh token over when
// an update arrives without one. Providers only issue refresh tokens on
// first consent, so an empty incoming value must not clobber the stored one.
func (c *Credential) MergeRefreshToken(prev *Credential) {
	if c.RefreshToken == "" && prev != nil {
		c.RefreshToken = prev.RefreshToken
	}
}
