// Package generation implements the generation boundary (core.Generator)
// over a model.Model.
//
// Free text is returned as-is apart from an enclosing code fence.
// Structured output goes through a bounded repair loop: the answer is
// reduced to its outermost JSON object, cleaned up with jsonc, validated
// structurally, and on failure the model is shown the schema, its previous
// answer and the validation errors, up to MaxRepairs times.
//
// Mock is a deterministic generator producing a small greeting project; it
// drives the default configuration and the end-to-end tests.
package generation
