package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/httpclient"
)

// RemoteHandler asks an external auth provider for grants over HTTP.
type RemoteHandler struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemoteHandler creates a handler posting to the auth provider at url.
func NewRemoteHandler(url string, logger *slog.Logger) *RemoteHandler {
	return &RemoteHandler{
		url:    url,
		client: httpclient.NewAuth(),
		logger: logger,
	}
}

type remoteRequest struct {
	Resource string     `json:"resource"`
	Provider string     `json:"provider"`
	Action   Action     `json:"action"`
	Auth     remoteAuth `json:"auth"`
}

type remoteAuth struct {
	Bearer   string `json:"bearer,omitempty"`
	Basic    string `json:"basic,omitempty"`
	Cookie   string `json:"cookie,omitempty"`
	ViewOnly string `json:"view_only,omitempty"`
}

type remoteResponse struct {
	Credentials map[string]any `json:"credentials"`
	Settings    map[string]any `json:"settings"`
	Identity    Identity       `json:"identity"`
	CallbackURL string         `json:"callback_url"`
}

func (h *RemoteHandler) Fetch(ctx context.Context, resource, providerName string, action Action, tokens Tokens) (*Grant, error) {
	payload, err := json.Marshal(remoteRequest{
		Resource: resource,
		Provider: providerName,
		Action:   action,
		Auth: remoteAuth{
			Bearer:   tokens.Bearer,
			Basic:    tokens.Basic,
			Cookie:   tokens.Cookie,
			ViewOnly: tokens.ViewOnly,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode auth request: %w", err)
	}

	var decoded remoteResponse
	err = httpclient.DoWithRetry(ctx, h.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, func(resp *http.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&decoded)
		case http.StatusUnauthorized:
			return gerrors.New(gerrors.KindUnauthorized, "auth provider rejected the credentials")
		case http.StatusForbidden:
			return gerrors.New(gerrors.KindForbidden, "auth provider denied access")
		case http.StatusNotFound:
			return gerrors.Newf(gerrors.KindNotFound, "resource %q not found", resource)
		case http.StatusGone:
			return gerrors.Newf(gerrors.KindGone, "resource %q is gone", resource)
		default:
			return gerrors.Newf(gerrors.KindServiceUnavailable,
				"auth provider answered %d", resp.StatusCode)
		}
	})
	if err != nil {
		if gerrors.KindOf(err) == gerrors.KindUnexpected {
			return nil, gerrors.Wrap(gerrors.KindServiceUnavailable, "auth provider unreachable", err)
		}
		return nil, err
	}

	h.logger.DebugContext(ctx, "auth grant obtained",
		"resource", resource,
		"provider", providerName,
		"action", string(action))
	return &Grant{
		Credentials: decoded.Credentials,
		Settings:    decoded.Settings,
		Identity:    decoded.Identity,
		CallbackURL: decoded.CallbackURL,
	}, nil
}
