package policy

// Visibility classifies one path against a policy document.
type Visibility struct {
	// IsPublicFile is set when the path's own resource is listed.
	IsPublicFile bool `json:"isPublicFile"`

	// IsInPublicDirectory is set when an ancestor directory is public.
	IsInPublicDirectory bool `json:"isInPublicDirectory"`

	// Policy is the document the result was computed from, nil when the
	// bucket grants nothing.
	Policy *Document `json:"-"`
}

// Public reports whether anonymous readers can reach the path.
func (v Visibility) Public() bool {
	return v.IsPublicFile || v.IsInPublicDirectory
}

// ToggleDisabled reports whether the path's own toggle has no effect
// because an ancestor already makes it public.
func (v Visibility) ToggleDisabled() bool {
	return v.IsInPublicDirectory
}

// Resolve classifies t against doc. It never fails: a nil or statement-less
// document makes every path private.
func Resolve(t Target, doc *Document) Visibility {
	if doc.Empty() {
		return Visibility{}
	}

	v := Visibility{
		IsPublicFile: doc.Has(t.OwnResource()),
		Policy:       doc,
	}
	for _, dir := range t.Ancestors() {
		if doc.Has(WildcardID(t.Bucket, dir)) {
			v.IsInPublicDirectory = true
			break
		}
	}
	return v
}

// ResolveMany classifies every path of a listing against the same document.
// The result is aligned with paths.
func ResolveMany(bucket string, paths []string, doc *Document) []Visibility {
	out := make([]Visibility, len(paths))
	for i, p := range paths {
		out[i] = Resolve(NewTarget(bucket, p), doc)
	}
	return out
}
