package schema

import "github.com/WhitenWhiten/CodeTeam/core"

// FormatSafePath marks strings that must be relative, slash-separated paths
// without ".." and without doubled separators.
const FormatSafePath = "safe-path"

var funcBrief = map[string]any{
	"type":     "object",
	"required": []any{"name", "signature"},
	"properties": map[string]any{
		"name":      map[string]any{"type": "string"},
		"signature": map[string]any{"type": "string"},
		"doc":       map[string]any{"type": "string"},
	},
	"additionalProperties": false,
}

var classBrief = map[string]any{
	"type":     "object",
	"required": []any{"name"},
	"properties": map[string]any{
		"name":           map[string]any{"type": "string"},
		"init_signature": map[string]any{"type": "string"},
		"methods":        map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/FuncBrief"}},
		"doc":            map[string]any{"type": "string"},
	},
	"additionalProperties": false,
}

var safePath = map[string]any{"type": "string", "format": FormatSafePath}

var designPlanSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "problem", "tech_stack", "repo_structure", "file_specs", "dev_plan"},
	"properties": map[string]any{
		"id":      map[string]any{"type": "string"},
		"problem": map[string]any{"type": "string", "minLength": 1},
		"tech_stack": map[string]any{
			"type":     "object",
			"required": []any{"language", "frameworks", "runtime", "test_framework"},
			"properties": map[string]any{
				"language":       map[string]any{"type": "string", "minLength": 1},
				"frameworks":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"runtime":        map[string]any{"type": "string"},
				"test_framework": map[string]any{"type": "string"},
			},
		},
		"repo_structure": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"$ref": "#/$defs/RepoNode"},
		},
		"file_specs": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"$ref": "#/$defs/FileSpec"},
		},
		"dev_plan": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"$ref": "#/$defs/DevAssignment"},
		},
		"constraints": map[string]any{"type": "object"},
		"notes":       map[string]any{"type": "string"},
	},
	"additionalProperties": false,
	"$defs": map[string]any{
		"RepoNode": map[string]any{
			"type":     "object",
			"required": []any{"path", "type"},
			"properties": map[string]any{
				"path":     safePath,
				"type":     map[string]any{"type": "string", "enum": []any{"file", "dir"}},
				"children": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/RepoNode"}},
			},
			"additionalProperties": false,
		},
		"FuncBrief":  funcBrief,
		"ClassBrief": classBrief,
		"FileSpec": map[string]any{
			"type":     "object",
			"required": []any{"path", "responsibilities", "interfaces"},
			"properties": map[string]any{
				"path":             safePath,
				"responsibilities": map[string]any{"type": "string"},
				"interfaces": map[string]any{
					"type":     "object",
					"required": []any{"functions", "classes"},
					"properties": map[string]any{
						"functions": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/FuncBrief"}},
						"classes":   map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/ClassBrief"}},
					},
					"additionalProperties": false,
				},
				"dependencies": map[string]any{"type": "array", "items": safePath},
			},
			"additionalProperties": false,
		},
		"DevAssignment": map[string]any{
			"type":     "object",
			"required": []any{"developer_id", "file_paths"},
			"properties": map[string]any{
				"developer_id": map[string]any{"type": "string", "minLength": 1},
				"file_paths": map[string]any{
					"type":        "array",
					"minItems":    1,
					"items":       safePath,
					"uniqueItems": true,
				},
			},
			"additionalProperties": false,
		},
	},
}

var auditRecordSchema = map[string]any{
	"type":     "object",
	"required": []any{"file_path", "change_type", "rationale", "related_files_brief_used"},
	"properties": map[string]any{
		"file_path":                safePath,
		"change_type":              map[string]any{"type": "string", "enum": []any{"create", "modify"}},
		"functions_added":          map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/FuncBrief"}},
		"functions_modified":       map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/FuncBrief"}},
		"functions_removed":        map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/FuncBrief"}},
		"classes_added":            map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/ClassBrief"}},
		"classes_modified":         map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/ClassBrief"}},
		"classes_removed":          map[string]any{"type": "array", "items": map[string]any{"$ref": "#/$defs/ClassBrief"}},
		"rationale":                map[string]any{"type": "string"},
		"related_files_brief_used": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"additionalProperties": false,
	"$defs": map[string]any{
		"FuncBrief":  funcBrief,
		"ClassBrief": classBrief,
	},
}

var selectionSchema = map[string]any{
	"type":     "object",
	"required": []any{"chosen_index"},
	"properties": map[string]any{
		"chosen_index": map[string]any{"type": "integer", "minimum": 0},
		"rationale":    map[string]any{"type": "string"},
	},
}

var fileMapSchema = map[string]any{
	"type":                 "object",
	"minProperties":        1,
	"propertyNames":        safePath,
	"additionalProperties": map[string]any{"type": "string"},
}

var builtin = map[core.SchemaKind]map[string]any{
	core.SchemaDesignPlan:  designPlanSchema,
	core.SchemaAuditRecord: auditRecordSchema,
	core.SchemaSelection:   selectionSchema,
	core.SchemaFileMap:     fileMapSchema,
}
