// Package brief extracts InterfaceBriefs from generated source, keeps the
// latest brief per path and diffs successive briefs into audit records.
//
// Workers never read each other's source: everything one file knows about
// another arrives through this package.
package brief
