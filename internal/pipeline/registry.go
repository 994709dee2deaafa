// Package pipeline orchestrates a document run from admission to its
// terminal decision.
package pipeline

import "sort"

// Groups partition the direct-submission endpoints: each endpoint accepts
// only the sub-types registered under its group.
const (
	GroupLaborCertificate = "labor_certificate"
	GroupShippingLabel    = "shipping_label"
)

// Shipping-label sub-types. Both run direct mode without the tamper checks
// or the authoritative-source lookup.
const (
	SubTypeLabelEnviame = "etiqueta_enviame"
	SubTypeLabelWalmart = "etiqueta_walmart"
)

// Variant describes a directly-submittable sub-type and which stages its
// runs go through.
type Variant struct {
	// TypeName is the catalog entry backing this variant.
	TypeName string
	// Group is the submission endpoint this variant belongs to.
	Group string
	// RequiresAuthenticity enables the tamper checks for this variant.
	RequiresAuthenticity bool
	// RequiresVerification enables the authoritative-source lookup.
	RequiresVerification bool
}

// Registry maps submitted sub-type identifiers onto variants. It is built
// once at startup; lookups are read-only afterwards.
type Registry struct {
	variants map[string]Variant
}

func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]Variant)}
}

func (r *Registry) Register(subType string, v Variant) {
	r.variants[subType] = v
}

func (r *Registry) Lookup(subType string) (Variant, bool) {
	v, ok := r.variants[subType]
	return v, ok
}

// SubTypes returns the identifiers registered under a group, sorted for
// stable request-validation messages.
func (r *Registry) SubTypes(group string) []string {
	out := make([]string, 0, len(r.variants))
	for k, v := range r.variants {
		if v.Group == group {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
