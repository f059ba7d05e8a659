// Package permissions implements the trust-type registry and the permission
// evaluator that gates every peer and client access.
package permissions

import (
	"encoding/json"
)

// Category is one of the access control surfaces a rule can apply to.
type Category string

const (
	CategoryProperties Category = "properties"
	CategoryMethods    Category = "methods"
	CategoryActions    Category = "actions"
	CategoryTools      Category = "tools"
	CategoryResources  Category = "resources"
	CategoryPrompts    Category = "prompts"
)

// Categories lists all access control surfaces in a stable order.
var Categories = []Category{
	CategoryProperties,
	CategoryMethods,
	CategoryActions,
	CategoryTools,
	CategoryResources,
	CategoryPrompts,
}

// Operation is a verb a rule can allow on a matched target.
type Operation string

const (
	OpRead      Operation = "read"
	OpWrite     Operation = "write"
	OpDelete    Operation = "delete"
	OpSubscribe Operation = "subscribe"
)

// CategoryRule is the per-category permission structure. Patterns are glob
// strings ('*', '?') or URI prefixes. ExcludedPatterns always win over
// Patterns.
type CategoryRule struct {
	Patterns         []string `json:"patterns,omitempty"`
	Operations       []string `json:"operations,omitempty"`
	ExcludedPatterns []string `json:"excluded_patterns,omitempty"`
}

// legacyCategoryRule accepts the older field aliases still found in stored
// rows.
type legacyCategoryRule struct {
	Patterns         []string `json:"patterns"`
	Allowed          []string `json:"allowed"`
	Operations       []string `json:"operations"`
	ExcludedPatterns []string `json:"excluded_patterns"`
	Denied           []string `json:"denied"`
}

// UnmarshalJSON accepts both the canonical dict form and the legacy bare
// list-of-patterns form, normalizing to the dict form.
func (r *CategoryRule) UnmarshalJSON(data []byte) error {
	// Legacy form: a plain JSON array of patterns.
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err == nil {
		*r = CategoryRule{Patterns: patterns}
		return nil
	}

	var legacy legacyCategoryRule
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	*r = CategoryRule{
		Patterns:         append(legacy.Patterns, legacy.Allowed...),
		Operations:       legacy.Operations,
		ExcludedPatterns: append(legacy.ExcludedPatterns, legacy.Denied...),
	}
	return nil
}

// IsZero reports whether the rule defines nothing at all.
func (r CategoryRule) IsZero() bool {
	return len(r.Patterns) == 0 && len(r.Operations) == 0 &&
		len(r.ExcludedPatterns) == 0
}

// PermissionSet holds one rule per category.
type PermissionSet struct {
	Properties CategoryRule `json:"properties,omitempty"`
	Methods    CategoryRule `json:"methods,omitempty"`
	Actions    CategoryRule `json:"actions,omitempty"`
	Tools      CategoryRule `json:"tools,omitempty"`
	Resources  CategoryRule `json:"resources,omitempty"`
	Prompts    CategoryRule `json:"prompts,omitempty"`
}

// Rule returns the rule for the given category.
func (p PermissionSet) Rule(c Category) CategoryRule {
	switch c {
	case CategoryProperties:
		return p.Properties
	case CategoryMethods:
		return p.Methods
	case CategoryActions:
		return p.Actions
	case CategoryTools:
		return p.Tools
	case CategoryResources:
		return p.Resources
	case CategoryPrompts:
		return p.Prompts
	default:
		return CategoryRule{}
	}
}

// setRule replaces the rule for the given category.
func (p *PermissionSet) setRule(c Category, r CategoryRule) {
	switch c {
	case CategoryProperties:
		p.Properties = r
	case CategoryMethods:
		p.Methods = r
	case CategoryActions:
		p.Actions = r
	case CategoryTools:
		p.Tools = r
	case CategoryResources:
		p.Resources = r
	case CategoryPrompts:
		p.Prompts = r
	}
}

// Merge overlays an override on a base set. Allow patterns and operations
// are unioned, and exclusions are unioned as well so an override can never
// narrow the base exclusions.
func Merge(base, override PermissionSet) PermissionSet {
	var merged PermissionSet
	for _, c := range Categories {
		b, o := base.Rule(c), override.Rule(c)
		merged.setRule(c, CategoryRule{
			Patterns:         unionStrings(b.Patterns, o.Patterns),
			Operations:       unionStrings(b.Operations, o.Operations),
			ExcludedPatterns: unionStrings(b.ExcludedPatterns, o.ExcludedPatterns),
		})
	}
	return merged
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// TrustType is a named template of base permissions assignable as a trust
// relationship.
type TrustType struct {
	Name              string          `json:"name"`
	DisplayName       string          `json:"display_name"`
	Description       string          `json:"description,omitempty"`
	BasePermissions   PermissionSet   `json:"base_permissions"`
	AllowUserOverride bool            `json:"allow_user_override"`
	OAuthScope        string          `json:"oauth_scope,omitempty"`
	ACLRules          json.RawMessage `json:"acl_rules,omitempty"`
}

// Decision is the outcome of a permission evaluation.
type Decision int

const (
	// DecisionNotFound means no rule covered the request at all. Callers
	// decide, and the HTTP layer treats it as denied.
	DecisionNotFound Decision = iota

	// DecisionAllowed means an allow pattern matched and no deny pattern
	// did.
	DecisionAllowed

	// DecisionDenied means a deny pattern matched, or explicit allow
	// patterns exist and none matched.
	DecisionDenied
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	default:
		return "not_found"
	}
}
