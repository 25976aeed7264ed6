package logging

import (
	"go.uber.org/zap"
)

// NewFileLogger builds a production logger that writes only to the
// given file. It is meant for processes whose stdout and stderr are
// reserved for protocol traffic.
func NewFileLogger(path string, level zap.AtomicLevel) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}

	return config.Build()
}
