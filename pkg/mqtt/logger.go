package mqtt

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/groundpeer/pkg/log"
)

// pahoLogger adapts a logr sink to paho's Println/Printf logger.
type pahoLogger struct {
	l logr.Logger
}

func newPahoLogger(l log.Logger) *pahoLogger {
	return &pahoLogger{l: l.Logr()}
}

func (p *pahoLogger) Println(v ...any) {
	p.l.Info(fmt.Sprint(v...))
}

func (p *pahoLogger) Printf(format string, v ...any) {
	p.l.Info(fmt.Sprintf(format, v...))
}
