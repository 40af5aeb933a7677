package core

import "github.com/google/uuid"

// NewID returns a random identifier for tasks, runs and commits.
func NewID() string { return uuid.NewString() }
