package credcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxEnvelopeBytes = 1 << 20

// STSExchanger calls AssumeRoleWithWebIdentity on a MinIO or AWS STS endpoint.
type STSExchanger struct {
	// Endpoint is the STS URL, e.g. "https://minio.example.com".
	Endpoint string

	// RoleARN is optional for MinIO, required by AWS.
	RoleARN string

	// Duration requests a credential lifetime. Zero lets the server decide.
	Duration time.Duration

	Client *http.Client
}

// Exchange performs the STS call. The SDK request is not bound to a
// context, so ctx only scopes the caller.
func (x *STSExchanger) Exchange(_ context.Context, token string) (Credentials, error) {
	sts := &credentials.STSWebIdentity{
		Client:      x.Client,
		STSEndpoint: x.Endpoint,
		RoleARN:     x.RoleARN,
		GetWebIDTokenExpiry: func() (*credentials.WebIdentityToken, error) {
			return &credentials.WebIdentityToken{
				Token:  token,
				Expiry: int(x.Duration.Seconds()),
			}, nil
		},
	}

	v, err := sts.RetrieveWithCredContext(&credentials.CredContext{Client: x.Client})
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		AccessKeyID:     v.AccessKeyID,
		SecretAccessKey: v.SecretAccessKey,
		SessionToken:    v.SessionToken,
		ExpiresAt:       v.Expiration,
	}, nil
}

// JSONExchanger posts the identity token to an HTTP endpoint that answers
// with a credential envelope (see ParseEnvelope).
type JSONExchanger struct {
	Endpoint string
	Duration time.Duration
	Client   *http.Client
}

type exchangeRequest struct {
	Token           string `json:"token"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

func (x *JSONExchanger) Exchange(ctx context.Context, token string) (Credentials, error) {
	body, err := json.Marshal(exchangeRequest{Token: token, DurationSeconds: int(x.Duration.Seconds())})
	if err != nil {
		return Credentials{}, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	client := x.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, errs.Wrap(errs.ErrKindConnectionFailed, "credential endpoint unreachable", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return Credentials{}, fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, errs.New(errs.ErrKindPermissionDenied,
			fmt.Sprintf("credential endpoint answered %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	return ParseEnvelope(resp.Header.Get("Content-Type"), payload)
}
