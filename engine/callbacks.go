package engine

import (
	"context"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/convergence"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// CallbackType defines the lifecycle points where callbacks run.
//
// Callbacks hook into the run pipeline without modifying it. They execute
// synchronously on the run goroutine, so a slow callback slows the run.
type CallbackType string

const (
	// CallbackBeforeStage is triggered before a stage starts. Returning an
	// error aborts the run at that stage.
	CallbackBeforeStage CallbackType = "before_stage"

	// CallbackAfterStage is triggered after a stage succeeds. Returning an
	// error aborts the run at that stage.
	CallbackAfterStage CallbackType = "after_stage"

	// CallbackOnRound is triggered after every test run of the convergence
	// loop. Errors are logged and ignored.
	CallbackOnRound CallbackType = "on_round"

	// CallbackOnError is triggered once when a run fails. Errors are logged
	// and ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect.
type CallbackContext struct {
	// RunID identifies the run.
	RunID string

	// Stage is the stage the callback fires for.
	Stage Stage

	// CallbackType indicates which callback type triggered this execution,
	// so one implementation can serve several types.
	CallbackType CallbackType

	// Plan is the selected plan once the select stage has completed.
	Plan *core.DesignPlan

	// RepoRoot is set once the repository exists.
	RepoRoot string

	// Round is set for CallbackOnRound.
	Round *convergence.RoundReport

	// Err is set for CallbackOnError.
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback is a run lifecycle hook.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackAfterStage,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("stage %s done", cc.Stage)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of run callbacks.
//
// Callbacks run in registration order and the first error stops the chain.
// Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(NewLoggingCallback(CallbackAfterStage, logger))
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType and
// returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback logs lifecycle events to a logging.Logger.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with the run, stage and, when present, round and
// error details.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"run_id", callbackCtx.RunID, "stage", string(callbackCtx.Stage)}

	if r := callbackCtx.Round; r != nil {
		args = append(args, "round", r.Round, "success", r.Result.Success, "fixes", len(r.Fixes))
	}

	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
		c.logger.Warn(string(c.callbackType), args...)

		return nil
	}

	c.logger.Info(string(c.callbackType), args...)

	return nil
}

// PlanCheckCallback vetoes a selected plan. It runs after the select stage;
// an error from the check aborts the run before any file is written.
//
// Example:
//
//	check := NewPlanCheckCallback(func(plan *core.DesignPlan) error {
//	    if len(plan.FileSpecs) > 20 {
//	        return errors.New("plan too large")
//	    }
//	    return nil
//	})
type PlanCheckCallback struct {
	check func(plan *core.DesignPlan) error
}

// NewPlanCheckCallback creates a plan check.
func NewPlanCheckCallback(check func(plan *core.DesignPlan) error) *PlanCheckCallback {
	return &PlanCheckCallback{check: check}
}

// Type returns CallbackAfterStage.
func (c *PlanCheckCallback) Type() CallbackType {
	return CallbackAfterStage
}

// Execute runs the check once the plan has been selected.
func (c *PlanCheckCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.check == nil || callbackCtx.Stage != StageSelect || callbackCtx.Plan == nil {
		return nil
	}

	return c.check(callbackCtx.Plan)
}
