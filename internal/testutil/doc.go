// Package testutil contains helper builders and fakes used across tests:
// design plan builders, a scripted generator and a scripted test runner.
// They are not intended for production usage.
package testutil
