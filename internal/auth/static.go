package auth

import (
	"context"
	"fmt"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// StaticGrant is one configured (resource, provider) mount for standalone
// installs: provider credentials and settings served from the config file.
type StaticGrant struct {
	Resource    string         `yaml:"resource" mapstructure:"resource" json:"resource"`
	Provider    string         `yaml:"provider" mapstructure:"provider" json:"provider"`
	ReadOnly    bool           `yaml:"read_only" mapstructure:"read_only" json:"read_only"`
	Credentials map[string]any `yaml:"credentials" mapstructure:"credentials" json:"-"`
	Settings    map[string]any `yaml:"settings" mapstructure:"settings" json:"settings"`
}

// StaticHandler grants access from configuration. When a signing secret is
// set, callers must present an HS256 bearer token whose subject becomes the
// caller identity; without a secret the handler is open (development mode).
type StaticHandler struct {
	secret []byte
	grants map[string]map[string]StaticGrant
}

// NewStaticHandler builds a handler from configured grants. secret may be
// empty to disable token verification.
func NewStaticHandler(secret string, grants []StaticGrant) *StaticHandler {
	byResource := make(map[string]map[string]StaticGrant)
	for _, grant := range grants {
		if byResource[grant.Resource] == nil {
			byResource[grant.Resource] = make(map[string]StaticGrant)
		}
		byResource[grant.Resource][grant.Provider] = grant
	}
	return &StaticHandler{secret: []byte(secret), grants: byResource}
}

func (h *StaticHandler) identity(tokens Tokens) (Identity, error) {
	if len(h.secret) == 0 {
		return Identity{ID: "anonymous"}, nil
	}
	if tokens.Bearer == "" {
		return Identity{}, gerrors.New(gerrors.KindUnauthorized, "bearer token required")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokens.Bearer, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return h.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, gerrors.Wrap(gerrors.KindUnauthorized, "invalid bearer token", err)
	}

	identity := Identity{}
	if sub, err := claims.GetSubject(); err == nil {
		identity.ID = sub
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if identity.ID == "" {
		return Identity{}, gerrors.New(gerrors.KindUnauthorized, "bearer token carries no subject")
	}
	return identity, nil
}

func (h *StaticHandler) Fetch(ctx context.Context, resource, providerName string, action Action, tokens Tokens) (*Grant, error) {
	identity, err := h.identity(tokens)
	if err != nil {
		return nil, err
	}

	providers, ok := h.grants[resource]
	if !ok {
		return nil, gerrors.Newf(gerrors.KindNotFound, "resource %q not found", resource)
	}
	grant, ok := providers[providerName]
	if !ok {
		return nil, gerrors.Newf(gerrors.KindNotFound, "provider %q not mounted on resource %q", providerName, resource)
	}
	if (grant.ReadOnly || tokens.ViewOnly != "") && action != ActionRead && action != ActionCopyFrom {
		return nil, gerrors.Newf(gerrors.KindForbidden, "resource %q is read-only", resource)
	}

	return &Grant{
		Credentials: grant.Credentials,
		Settings:    grant.Settings,
		Identity:    identity,
	}, nil
}
