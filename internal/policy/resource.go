// Package policy interprets bucket access-policy documents.
//
// A path is public when its own resource (exact key for a file, "dir/*" for
// a directory) is listed in the first statement of the bucket policy, and
// inherited-public when the wildcard of any ancestor directory, the bucket
// root included, is listed there. Matching is plain string equality on
// resource identifiers.
package policy

import "strings"

const arnPrefix = "arn:aws:s3:::"

// ResourceID returns the canonical resource identifier for path in bucket.
// An empty path identifies the bucket itself.
func ResourceID(bucket, path string) string {
	if path == "" {
		return arnPrefix + bucket
	}
	return arnPrefix + bucket + "/" + path
}

// WildcardID returns the identifier matching everything under dir.
func WildcardID(bucket, dir string) string {
	return ResourceID(bucket, dir) + "/*"
}

// Target names a file or directory inside a bucket. A trailing "/" marks a
// directory; the empty path is the bucket root.
type Target struct {
	Bucket string
	Path   string
}

// NewTarget builds a Target, dropping leading slashes from path.
func NewTarget(bucket, path string) Target {
	return Target{Bucket: bucket, Path: strings.TrimLeft(path, "/")}
}

// IsDir reports whether t designates a directory.
func (t Target) IsDir() bool {
	return t.Path == "" || strings.HasSuffix(t.Path, "/")
}

// Key is the path without its directory marker.
func (t Target) Key() string {
	return strings.TrimRight(t.Path, "/")
}

// OwnResource is the resource a visibility toggle adds or removes for t.
func (t Target) OwnResource() string {
	if t.IsDir() {
		return WildcardID(t.Bucket, t.Key())
	}
	return ResourceID(t.Bucket, t.Key())
}

// Ancestors returns the directories above t, from the bucket root ("")
// downwards. t itself is not included.
func (t Target) Ancestors() []string {
	key := t.Key()
	if key == "" {
		return nil
	}
	parts := strings.Split(key, "/")
	dirs := make([]string, 0, len(parts))
	dirs = append(dirs, "")
	for i := 1; i < len(parts); i++ {
		dirs = append(dirs, strings.Join(parts[:i], "/"))
	}
	return dirs
}

func (t Target) String() string {
	return t.Bucket + "/" + t.Path
}
