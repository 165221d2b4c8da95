// Package zap adapts a *zap.Logger to the stratacache.Logger interface.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/stratacache"
)

type Logger struct{ L *zap.Logger }

var _ stratacache.Logger = Logger{}

func (z Logger) Debug(msg string, f stratacache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f stratacache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f stratacache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f stratacache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f stratacache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
