// Package schema validates externally generated payloads in two tiers:
// structural checks against fixed JSON-schema-shaped definitions, and
// semantic checks across fields of a design plan.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// DefaultAllowedLanguages is the technology set accepted when none is configured.
var DefaultAllowedLanguages = []string{"python", "go"}

// Options configures a Validator.
type Options struct {
	// AllowedLanguages lists the accepted tech_stack.language values
	// (case-insensitive).
	AllowedLanguages []string
}

// Validator checks payloads against the built-in schemas. It is safe for
// concurrent use.
type Validator struct {
	allowed map[string]struct{}
	opts    Options
}

// New creates a Validator.
func New(optFns ...func(o *Options)) *Validator {
	opts := Options{AllowedLanguages: DefaultAllowedLanguages}

	for _, fn := range optFns {
		fn(&opts)
	}

	allowed := make(map[string]struct{}, len(opts.AllowedLanguages))
	for _, l := range opts.AllowedLanguages {
		allowed[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	return &Validator{allowed: allowed, opts: opts}
}

// AllowedLanguages returns the configured languages, sorted and lower-cased.
func (v *Validator) AllowedLanguages() []string {
	out := make([]string, 0, len(v.allowed))
	for l := range v.allowed {
		out = append(out, l)
	}

	sort.Strings(out)

	return out
}

// Schema returns the definition used for kind, or nil for an unknown kind.
func (v *Validator) Schema(kind core.SchemaKind) map[string]any {
	return builtin[kind]
}

// SchemaJSON renders the definition for kind, used in repair prompts.
func (v *Validator) SchemaJSON(kind core.SchemaKind) string {
	b, err := json.MarshalIndent(v.Schema(kind), "", "  ")
	if err != nil {
		return "{}"
	}

	return string(b)
}

// Validate runs the structural tier and, when it passes, the semantic tier.
func (v *Validator) Validate(payload map[string]any, kind core.SchemaKind) error {
	if err := v.ValidateStructure(payload, kind); err != nil {
		return err
	}

	return v.ValidateSemantics(payload, kind)
}

// ValidateStructure checks required fields, types, enums and path safety.
func (v *Validator) ValidateStructure(payload map[string]any, kind core.SchemaKind) error {
	s, ok := builtin[kind]
	if !ok {
		return &core.SchemaError{Kind: kind, Tier: core.TierStructural, Issues: []string{"unknown schema kind"}}
	}

	defs, _ := s["$defs"].(map[string]any)
	w := &walker{defs: defs}

	if payload == nil {
		w.fail("$", nil, "payload is null")
	} else {
		w.validate("$", payload, s)
	}

	if len(w.issues) == 0 {
		return nil
	}

	issues := make([]string, len(w.issues))
	for i, is := range w.issues {
		issues[i] = is.Error()
	}

	return &core.SchemaError{Kind: kind, Tier: core.TierStructural, Issues: issues}
}

// ValidateSemantics checks cross-field constraints. Only design plans carry
// semantic rules; other kinds always pass.
func (v *Validator) ValidateSemantics(payload map[string]any, kind core.SchemaKind) error {
	if kind != core.SchemaDesignPlan {
		return nil
	}

	plan, err := DecodePlan(payload)
	if err != nil {
		return &core.SchemaError{Kind: kind, Tier: core.TierStructural, Issues: []string{err.Error()}}
	}

	return v.ValidatePlanSemantics(plan)
}

// ValidatePlanSemantics checks that every FileSpec path is in the tree, that
// the DevPlan assigns every FileSpec path exactly once and nothing else, and
// that the language is allowed.
func (v *Validator) ValidatePlanSemantics(plan *core.DesignPlan) error {
	var issues []string

	files := make(map[string]struct{})
	for _, f := range plan.AllowedPaths() {
		files[f] = struct{}{}
	}

	specs := make(map[string]struct{}, len(plan.FileSpecs))

	for _, fs := range plan.FileSpecs {
		if _, ok := files[fs.Path]; !ok {
			issues = append(issues, fmt.Sprintf("file_specs path %q not in repo_structure", fs.Path))
		}

		if _, dup := specs[fs.Path]; dup {
			issues = append(issues, fmt.Sprintf("file_specs path %q declared twice", fs.Path))
		}

		specs[fs.Path] = struct{}{}
	}

	assigned := make(map[string]string)

	for _, a := range plan.DevPlan {
		for _, f := range a.FilePaths {
			if prev, dup := assigned[f]; dup {
				issues = append(issues, fmt.Sprintf("file %q assigned to multiple developers: %s & %s", f, prev, a.DeveloperID))
				continue
			}

			assigned[f] = a.DeveloperID
		}
	}

	var missing, extra []string

	for p := range specs {
		if _, ok := assigned[p]; !ok {
			missing = append(missing, p)
		}
	}

	for p := range assigned {
		if _, ok := specs[p]; !ok {
			extra = append(extra, p)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		issues = append(issues, fmt.Sprintf("dev_plan must cover exactly file_specs: missing=%v extra=%v", missing, extra))
	}

	lang := strings.ToLower(strings.TrimSpace(plan.TechStack.Language))
	if _, ok := v.allowed[lang]; !ok {
		issues = append(issues, fmt.Sprintf("unsupported language %q (allowed: %s)", plan.TechStack.Language, strings.Join(v.opts.AllowedLanguages, ", ")))
	}

	if len(issues) == 0 {
		return nil
	}

	return &core.SchemaError{Kind: core.SchemaDesignPlan, Tier: core.TierSemantic, Issues: issues}
}

// ValidateAudit checks an audit record against its schema.
func (v *Validator) ValidateAudit(rec core.AuditRecord) error {
	payload, err := rec.Payload()
	if err != nil {
		return &core.SchemaError{Kind: core.SchemaAuditRecord, Tier: core.TierStructural, Issues: []string{err.Error()}}
	}

	return v.Validate(payload, core.SchemaAuditRecord)
}

// DecodePlan converts a validated payload into a DesignPlan.
func DecodePlan(payload map[string]any) (*core.DesignPlan, error) {
	var plan core.DesignPlan
	if err := core.FromPayload(payload, &plan); err != nil {
		return nil, fmt.Errorf("decode design plan: %w", err)
	}

	return &plan, nil
}

// Selection is the decoded selector answer.
type Selection struct {
	ChosenIndex int    `json:"chosen_index"`
	Rationale   string `json:"rationale"`
}

// DecodeSelection converts a validated payload into a Selection.
func DecodeSelection(payload map[string]any) (Selection, error) {
	var sel Selection
	if err := core.FromPayload(payload, &sel); err != nil {
		return Selection{}, fmt.Errorf("decode selection: %w", err)
	}

	return sel, nil
}
