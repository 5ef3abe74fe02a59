package observability

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the application logger: human-readable in development,
// JSON in anything else.
func NewLogger(environment string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
