// Package logging builds zap loggers and adapts them to the domain logging hooks.
package logging

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const environmentProduction = "production"

// New creates a JSON logger for production and a colored console logger otherwise.
func New(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == environmentProduction {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build(zap.AddCaller())
}

// LedgerOperationLogger writes ledger operations to zap.
type LedgerOperationLogger struct {
	logger *zap.Logger
}

// NewLedgerOperationLogger wraps logger; a nil logger discards entries.
func NewLedgerOperationLogger(logger *zap.Logger) *LedgerOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerOperationLogger{logger: logger.Named("ledger")}
}

// LogOperation implements ledger.OperationLogger.
func (operationLogger *LedgerOperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("description", entry.Description),
	}
	if !entry.EventID.IsZero() {
		fields = append(fields, zap.String("event_id", entry.EventID.String()))
	}
	if !entry.IdempotencyKey.IsZero() {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if ledger.IsBusinessError(entry.Error) {
		operationLogger.logger.Info("ledger operation rejected", append(fields, zap.Error(entry.Error))...)
		return
	}
	if entry.Error != nil {
		operationLogger.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}

// WorkflowLogger reports event creation progress to zap.
type WorkflowLogger struct {
	logger *zap.Logger
}

// NewWorkflowLogger wraps logger; a nil logger discards entries.
func NewWorkflowLogger(logger *zap.Logger) *WorkflowLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowLogger{logger: logger.Named("eventcreation")}
}

// ObserveState implements eventcreation.Observer.
func (workflowLogger *WorkflowLogger) ObserveState(_ context.Context, state eventcreation.State) {
	workflowLogger.logger.Debug("event creation state", zap.String("state", string(state)))
}

// ObserveOutcome implements eventcreation.Observer.
func (workflowLogger *WorkflowLogger) ObserveOutcome(_ context.Context, outcome eventcreation.Outcome, elapsed time.Duration) {
	workflowLogger.logger.Info("event creation finished",
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", elapsed),
	)
}
