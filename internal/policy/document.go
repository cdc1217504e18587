package policy

import (
	"encoding/json"

	"github.com/koustreak/bucketvis/internal/errs"
	miniopolicy "github.com/minio/minio-go/v7/pkg/policy"
	"github.com/minio/minio-go/v7/pkg/set"
)

const (
	policyVersion = "2012-10-17"
	actionGet     = "s3:GetObject"
	effectAllow   = "Allow"
)

// Document is a bucket access-policy document. Only the first statement is
// ever read or written; a document without statements grants nothing.
type Document struct {
	miniopolicy.BucketAccessPolicy
}

// Default is the document written to buckets that have no policy yet:
// a single anonymous-read statement listing no resources.
func Default() *Document {
	return &Document{BucketAccessPolicy: miniopolicy.BucketAccessPolicy{
		Version:    policyVersion,
		Statements: []miniopolicy.Statement{defaultStatement()},
	}}
}

func defaultStatement() miniopolicy.Statement {
	return miniopolicy.Statement{
		Effect:    effectAllow,
		Principal: miniopolicy.User{AWS: set.CreateStringSet("*")},
		Actions:   set.CreateStringSet(actionGet),
		Resources: set.NewStringSet(),
	}
}

// Parse decodes a raw JSON policy document.
func Parse(raw string) (*Document, error) {
	d := &Document{}
	if err := json.Unmarshal([]byte(raw), &d.BucketAccessPolicy); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed bucket policy", err)
	}
	return d, nil
}

// JSON encodes the document for the storage backend.
func (d *Document) JSON() (string, error) {
	b, err := json.Marshal(d.BucketAccessPolicy)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "failed to encode bucket policy", err)
	}
	return string(b), nil
}

// Empty reports whether d grants nothing because it has no statement.
func (d *Document) Empty() bool {
	return d == nil || len(d.Statements) == 0
}

// Resources returns the sorted resources of the first statement.
func (d *Document) Resources() []string {
	if d.Empty() {
		return []string{}
	}
	return d.Statements[0].Resources.ToSlice()
}

// Has reports whether resource is listed in the first statement.
func (d *Document) Has(resource string) bool {
	if d.Empty() {
		return false
	}
	return d.Statements[0].Resources.Contains(resource)
}

// WithResource returns a copy of d with resource added to the first
// statement. A document without statements gets the default one.
func (d *Document) WithResource(resource string) *Document {
	c := d.clone()
	if len(c.Statements) == 0 {
		c.Statements = []miniopolicy.Statement{defaultStatement()}
	}
	c.Statements[0].Resources.Add(resource)
	return c
}

// WithoutResource returns a copy of d with resource removed from the first
// statement. Removal is exact-match only.
func (d *Document) WithoutResource(resource string) *Document {
	c := d.clone()
	if len(c.Statements) > 0 {
		c.Statements[0].Resources.Remove(resource)
	}
	return c
}

func (d *Document) clone() *Document {
	c := &Document{}
	if d == nil {
		c.Version = policyVersion
		return c
	}
	c.Version = d.Version
	if c.Version == "" {
		c.Version = policyVersion
	}
	c.Statements = make([]miniopolicy.Statement, len(d.Statements))
	for i, s := range d.Statements {
		c.Statements[i] = miniopolicy.Statement{
			Actions:    set.CopyStringSet(s.Actions),
			Conditions: s.Conditions,
			Effect:     s.Effect,
			Principal: miniopolicy.User{
				AWS:           copyOrNil(s.Principal.AWS),
				CanonicalUser: copyOrNil(s.Principal.CanonicalUser),
			},
			Resources: set.CopyStringSet(s.Resources),
			Sid:       s.Sid,
		}
	}
	return c
}

func copyOrNil(s set.StringSet) set.StringSet {
	if s == nil {
		return nil
	}
	return set.CopyStringSet(s)
}
