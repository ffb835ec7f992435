// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/apibridge/internal/config"
	"github.com/tombee/apibridge/internal/log"
	apierrors "github.com/tombee/apibridge/pkg/errors"
)

// Source fetches a credential set for a session token.
type Source interface {
	Fetch(ctx context.Context, sessionToken string) (*Credential, error)
}

// Gateway resolves credentials from the HTTP credential authority.
type Gateway struct {
	url      string
	endpoint string
	apiKey   string
	expected []string
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// gatewayResponse is the authority's response envelope.
type gatewayResponse struct {
	Data map[string]string `json:"data"`
}

// maxGatewayBody caps how much of an authority response is read.
const maxGatewayBody = 1 << 20

// NewGateway builds a gateway client from auth configuration. The service
// name substitutes into the endpoint's {name} placeholder.
func NewGateway(cfg config.AuthConfig, serviceName string, logger *slog.Logger) *Gateway {
	endpoint := strings.ReplaceAll(cfg.GatewayEndpoint, "{name}", serviceName)
	expected := make([]string, 0, len(cfg.Credentials))
	for _, m := range cfg.Credentials {
		expected = append(expected, m.Name)
	}
	return &Gateway{
		url:      strings.TrimRight(cfg.GatewayURL, "/"),
		endpoint: endpoint,
		apiKey:   cfg.GatewayAPIKey,
		expected: expected,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		now:      time.Now,
	}
}

// Fetch requests the session's credential set from the authority.
func (g *Gateway) Fetch(ctx context.Context, sessionToken string) (*Credential, error) {
	if g.url == "" {
		return nil, &apierrors.AuthError{
			Kind:    apierrors.NotConfigured,
			Message: "credential authority URL is not configured",
		}
	}
	if g.apiKey == "" {
		return nil, &apierrors.AuthError{
			Kind:    apierrors.NotConfigured,
			Message: "credential authority service key is not configured",
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+g.endpoint, nil)
	if err != nil {
		return nil, &apierrors.AuthError{
			Kind:    apierrors.GatewayUnreachable,
			Message: "building authority request failed",
			Cause:   err,
		}
	}
	req.Header.Set("Authorization", "Bearer "+sessionToken)
	req.Header.Set("X-API-Key", g.apiKey)
	req.Header.Set("Accept", "application/json")

	start := g.now()
	resp, err := g.client.Do(req)
	if err != nil {
		gatewayFetches.WithLabelValues("unreachable").Inc()
		return nil, &apierrors.AuthError{
			Kind:    apierrors.GatewayUnreachable,
			Message: "credential authority is unreachable",
			Cause:   err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		gatewayFetches.WithLabelValues("unreachable").Inc()
		return nil, &apierrors.AuthError{
			Kind:    apierrors.GatewayUnreachable,
			Message: "reading authority response failed",
			Cause:   err,
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		gatewayFetches.WithLabelValues("invalid_token").Inc()
		return nil, &apierrors.AuthError{
			Kind:       apierrors.InvalidToken,
			Message:    "session token was rejected by the credential authority",
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		gatewayFetches.WithLabelValues("error").Inc()
		return nil, &apierrors.AuthError{
			Kind:       apierrors.GatewayUnreachable,
			Message:    fmt.Sprintf("credential authority returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var envelope gatewayResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		gatewayFetches.WithLabelValues("error").Inc()
		return nil, &apierrors.AuthError{
			Kind:    apierrors.GatewayUnreachable,
			Message: "credential authority returned a malformed response",
			Cause:   err,
		}
	}

	var missing []string
	for _, name := range g.expected {
		if _, ok := envelope.Data[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		gatewayFetches.WithLabelValues("error").Inc()
		return nil, &apierrors.AuthError{
			Kind:    apierrors.GatewayUnreachable,
			Message: fmt.Sprintf("credential authority response is missing %s", strings.Join(missing, ", ")),
		}
	}

	gatewayFetches.WithLabelValues("ok").Inc()
	gatewayFetchDuration.Observe(g.now().Sub(start).Seconds())

	if g.logger != nil {
		g.logger.Debug("credentials resolved",
			slog.String(log.SessionKey, log.FingerprintToken(sessionToken)),
			slog.Int("credentials", len(envelope.Data)),
		)
	}

	return &Credential{Values: envelope.Data, FetchedAt: g.now()}, nil
}
