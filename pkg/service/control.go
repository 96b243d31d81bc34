package service

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Control is a request from the service manager.
type Control uint32

const (
	Stop Control = iota + 1
	Pause
	Continue
	Interrogate
	Shutdown
	ParamChange
)

func (c Control) String() string {
	switch c {
	case Stop:
		return "stop"
	case Pause:
		return "pause"
	case Continue:
		return "continue"
	case Interrogate:
		return "interrogate"
	case Shutdown:
		return "shutdown"
	case ParamChange:
		return "param_change"
	default:
		return fmt.Sprintf("Control(%d)", uint32(c))
	}
}

// Terminates reports whether the control asks the service to exit.
func (c Control) Terminates() bool {
	return c == Stop || c == Shutdown
}

// controlForSignal translates a process signal into the control a service
// manager would have sent for it.
func controlForSignal(sig os.Signal) (Control, bool) {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return Stop, true
	case syscall.SIGHUP:
		return ParamChange, true
	default:
		return 0, false
	}
}

// notifySignals subscribes ch to the signals controlForSignal understands.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
