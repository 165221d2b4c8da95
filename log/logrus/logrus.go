// Package logrus adapts a logrus logger to the stratacache.Logger interface.
package logrus

import (
	lr "github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/stratacache"
)

type Logger struct{ L lr.FieldLogger }

var _ stratacache.Logger = Logger{}

func (l Logger) Debug(msg string, f stratacache.Fields) { l.L.WithFields(lf(f)).Debug(msg) }
func (l Logger) Info(msg string, f stratacache.Fields)  { l.L.WithFields(lf(f)).Info(msg) }
func (l Logger) Warn(msg string, f stratacache.Fields)  { l.L.WithFields(lf(f)).Warn(msg) }
func (l Logger) Error(msg string, f stratacache.Fields) { l.L.WithFields(lf(f)).Error(msg) }

func lf(f stratacache.Fields) lr.Fields {
	if len(f) == 0 {
		return nil
	}
	out := make(lr.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
