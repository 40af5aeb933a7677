// Package core provides the foundational domain types, error taxonomy and
// boundary interfaces shared by every codeteam component:
//
//   - DesignPlan and its parts (RepoNode tree, FileSpec, DevAssignment)
//   - InterfaceBrief, the signature-only summary exchanged between workers
//   - AuditRecord, the per-commit rationale that forms the audit trail
//   - Task and Completion, the tagged messages carried by the task bus
//   - RunResult and Failure, the outcome of a test run
//   - Generator, TestRunner, Retriever, BriefStore and Bus boundaries
//
// The package holds no behaviour beyond constructors enforcing invariants,
// so concrete backends live in their own packages.
package core
