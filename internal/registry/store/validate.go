package store

import (
	"regexp"
	"strings"

	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
)

// DefaultEdgeStrength is used when a weave request omits strength.
const DefaultEdgeStrength = 0.5

// Validate checks the per-kind payload rules of a layer append.
// Artifact ownership is checked by the store.
func (r *AppendLayerRequest) Validate() error {
	if !r.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: "unsupported layer kind"}
	}
	switch {
	case r.Kind.IsTextual():
		if r.TextContent == nil || strings.TrimSpace(*r.TextContent) == "" {
			return &ValidationError{Field: "text_content", Message: "text_content required for TEXT/REFLECTION"}
		}
	case r.Kind.IsMedia():
		if r.ArtifactID == nil || *r.ArtifactID == uuid.Nil {
			return &ValidationError{Field: "artifact_id", Message: "artifact_id required for media kinds"}
		}
	case r.Kind == model.LayerLink:
		url, _ := r.Meta["url"].(string)
		if strings.TrimSpace(url) == "" {
			return &ValidationError{Field: "meta.url", Message: "meta.url required for LINK kind"}
		}
	}
	if r.Meta == nil {
		r.Meta = map[string]interface{}{}
	}
	return nil
}

// Validate checks a weave request, applies the default strength and
// returns the endpoints in canonical order.
func (r *WeaveRequest) Validate() (a, b uuid.UUID, err error) {
	if r.AID == uuid.Nil || r.BID == uuid.Nil {
		return uuid.Nil, uuid.Nil, &ValidationError{Field: "a_id", Message: "a_id and b_id are required"}
	}
	if r.AID == r.BID {
		return uuid.Nil, uuid.Nil, &ValidationError{Field: "b_id", Message: "cannot weave a memory to itself"}
	}
	if !r.Relation.Valid() {
		return uuid.Nil, uuid.Nil, &ValidationError{Field: "relation", Message: "unsupported relation " + string(r.Relation)}
	}
	if r.Strength == nil {
		s := DefaultEdgeStrength
		r.Strength = &s
	}
	if s := *r.Strength; !(s >= 0 && s <= 1) {
		return uuid.Nil, uuid.Nil, &ValidationError{Field: "strength", Message: "strength must be between 0 and 1"}
	}
	a, b = CanonicalPair(r.AID, r.BID)
	return a, b, nil
}

// CanonicalPair orders two memory ids so the lexically smaller one comes first.
func CanonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(x.String(), y.String()) <= 0 {
		return x, y
	}
	return y, x
}

// Validate checks the optional time range of a core.
func (r *SetCoreRequest) Validate() error {
	if r.WhenStart != nil && r.WhenEnd != nil && r.WhenEnd.Before(*r.WhenStart) {
		return &ValidationError{Field: "when_end", Message: "when_end must not be before when_start"}
	}
	if r.Anchors == nil {
		r.Anchors = []string{}
	}
	r.People = dedupe(r.People)
	return nil
}

// Validate checks a permissions change.
func (r *PermissionsRequest) Validate() error {
	if !r.Visibility.Valid() {
		return &ValidationError{Field: "visibility", Message: "visibility must be PRIVATE, SHARED or PUBLIC"}
	}
	return nil
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of non-alphanumerics into a dash.
func Slugify(s string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// PublicSlugFor builds the public slug of a memory from its title and id.
func PublicSlugFor(title *string, id uuid.UUID) string {
	base := "memory"
	if title != nil {
		if s := Slugify(*title); s != "" {
			base = s
		}
	}
	return base + "-" + strings.SplitN(id.String(), "-", 2)[0]
}

// ClampLimit bounds limit to [min, max].
func ClampLimit(limit, min, max int) int {
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
