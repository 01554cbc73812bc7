package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build returns a zap logger for the section. Development mode logs in
// console format with stack traces on warnings.
func (l Log) Build() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		lvl, err := zapcore.ParseLevel(l.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
