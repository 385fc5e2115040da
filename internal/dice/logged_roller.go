package dice

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Roller wraps a Source and logger to provide logged, traced rolling. Every
// evaluation is logged at debug level with the formula, individual dice,
// total, trace, and a correlation id.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to
// logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Roll evaluates f with a trace and logs the result.
//
// Postcondition: Returns a traced Result or an evaluation error.
func (r *Roller) Roll(f *Formula, vars Bindings) (Result, error) {
	result, err := f.EvalTraced(r.src, vars)
	if err != nil {
		return Result{}, err
	}
	r.logger.Debug("dice roll",
		zap.String("roll_id", uuid.NewString()),
		zap.String("formula", f.String()),
		zap.Int64s("dice", result.Dice),
		zap.String("trace", result.Trace),
		zap.String("value", result.Value.String()),
	)
	return result, nil
}

// RollExpr parses text and rolls it, logging the result.
//
// Postcondition: Returns a Result or a parse/evaluation error.
func (r *Roller) RollExpr(text string, vars Bindings) (Result, error) {
	f, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	return r.Roll(f, vars)
}
