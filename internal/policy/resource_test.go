package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceID(t *testing.T) {
	assert.Equal(t, "arn:aws:s3:::b1", ResourceID("b1", ""))
	assert.Equal(t, "arn:aws:s3:::b1/reports/q1.csv", ResourceID("b1", "reports/q1.csv"))
	assert.Equal(t, "arn:aws:s3:::b1/reports/*", WildcardID("b1", "reports"))
	assert.Equal(t, "arn:aws:s3:::b1/*", WildcardID("b1", ""))
}

func TestTarget(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantDir   bool
		wantOwn   string
		wantAnces []string
	}{
		{name: "file", path: "a/b/c.txt", wantOwn: "arn:aws:s3:::b1/a/b/c.txt", wantAnces: []string{"", "a", "a/b"}},
		{name: "top-level file", path: "c.txt", wantOwn: "arn:aws:s3:::b1/c.txt", wantAnces: []string{""}},
		{name: "directory", path: "a/b/", wantDir: true, wantOwn: "arn:aws:s3:::b1/a/b/*", wantAnces: []string{"", "a"}},
		{name: "leading slash dropped", path: "/a/c.txt", wantOwn: "arn:aws:s3:::b1/a/c.txt", wantAnces: []string{"", "a"}},
		{name: "root", path: "", wantDir: true, wantOwn: "arn:aws:s3:::b1/*"},
		{name: "slash root", path: "/", wantDir: true, wantOwn: "arn:aws:s3:::b1/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewTarget("b1", tt.path)
			assert.Equal(t, tt.wantDir, target.IsDir())
			assert.Equal(t, tt.wantOwn, target.OwnResource())
			assert.Equal(t, tt.wantAnces, target.Ancestors())
		})
	}
}
