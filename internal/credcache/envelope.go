package credcache

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type jsonCredentials struct {
	AccessKey    string    `json:"accessKey"`
	SecretKey    string    `json:"secretKey"`
	SessionToken string    `json:"sessionToken"`
	Expiration   time.Time `json:"expiration"`
}

type jsonEnvelope struct {
	Credentials *jsonCredentials `json:"Credentials"`
}

// ParseEnvelope decodes the body of a role-assumption response. Both the STS
// XML envelope and a JSON body are accepted; JSON may either nest the values
// under "Credentials" or carry them at the top level.
func ParseEnvelope(contentType string, body []byte) (Credentials, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Credentials{}, errs.New(errs.ErrKindInvalidInput, "empty credential envelope")
	}

	if strings.Contains(contentType, "json") || trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseXML(trimmed)
}

func parseJSON(body []byte) (Credentials, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Credentials{}, errs.Wrap(errs.ErrKindInvalidInput, "malformed JSON credential envelope", err)
	}

	c := env.Credentials
	if c == nil {
		c = &jsonCredentials{}
		if err := json.Unmarshal(body, c); err != nil {
			return Credentials{}, errs.Wrap(errs.ErrKindInvalidInput, "malformed JSON credential envelope", err)
		}
	}

	return Credentials{
		AccessKeyID:     c.AccessKey,
		SecretAccessKey: c.SecretKey,
		SessionToken:    c.SessionToken,
		ExpiresAt:       c.Expiration,
	}, nil
}

func parseXML(body []byte) (Credentials, error) {
	var resp credentials.AssumeRoleWithWebIdentityResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return Credentials{}, errs.Wrap(errs.ErrKindInvalidInput, "malformed XML credential envelope", err)
	}

	c := resp.Result.Credentials
	return Credentials{
		AccessKeyID:     c.AccessKey,
		SecretAccessKey: c.SecretKey,
		SessionToken:    c.SessionToken,
		ExpiresAt:       c.Expiration,
	}, nil
}
