// Package service maps a process's running/stopping state onto the host's
// service manager and delivers the manager's control requests as a stream.
package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrServiceTypeUnset is returned by SetStatus before a service type has been
// chosen.
var ErrServiceTypeUnset = errors.New("service type must be set before reporting status")

// ServiceType describes how the service process is hosted.
type ServiceType uint32

const (
	TypeUnset ServiceType = iota
	OwnProcess
	ShareProcess
	UserOwnProcess
	UserShareProcess
)

func (t ServiceType) String() string {
	switch t {
	case TypeUnset:
		return "unset"
	case OwnProcess:
		return "own_process"
	case ShareProcess:
		return "share_process"
	case UserOwnProcess:
		return "user_own_process"
	case UserShareProcess:
		return "user_share_process"
	default:
		return fmt.Sprintf("ServiceType(%d)", uint32(t))
	}
}

// State is the service's current lifecycle state. Values match the Windows
// SERVICE_* state codes.
type State uint32

const (
	Stopped State = iota + 1
	StartPending
	StopPending
	Running
	ContinuePending
	PausePending
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case StartPending:
		return "start_pending"
	case StopPending:
		return "stop_pending"
	case Running:
		return "running"
	case ContinuePending:
		return "continue_pending"
	case PausePending:
		return "pause_pending"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Accept is a set of controls the service is willing to receive.
type Accept uint32

const (
	AcceptStop Accept = 1 << iota
	AcceptPauseContinue
	AcceptShutdown
	AcceptParamChange

	AcceptAll = AcceptStop | AcceptPauseContinue | AcceptShutdown | AcceptParamChange
)

// Has reports whether every control in o is accepted.
func (a Accept) Has(o Accept) bool {
	return a&o == o
}

func (a Accept) String() string {
	var names []string
	for _, f := range []struct {
		flag Accept
		name string
	}{
		{AcceptStop, "stop"},
		{AcceptPauseContinue, "pause_continue"},
		{AcceptShutdown, "shutdown"},
		{AcceptParamChange, "param_change"},
	} {
		if a.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Status is one status record pushed to the service manager.
type Status struct {
	Type     ServiceType
	State    State
	Accepts  Accept
	WaitHint time.Duration
	ExitCode uint32
	// Message is a free-form status line, shown by systemctl status.
	Message string
}

// Reporter delivers a status record to the host's service manager.
type Reporter interface {
	Report(Status) error
}

// Handle accumulates a status record and pushes it through a Reporter. The
// setters return the handle so calls can be chained:
//
//	h.SetServiceType(service.OwnProcess).
//		SetCurrentState(service.Running).
//		SetControlAccept(service.AcceptStop | service.AcceptShutdown).
//		SetStatus()
type Handle struct {
	mu       sync.Mutex
	reporter Reporter
	status   Status
}

// NewHandle creates a handle reporting through r.
func NewHandle(r Reporter) *Handle {
	return &Handle{reporter: r}
}

func (h *Handle) SetServiceType(t ServiceType) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Type = t
	return h
}

func (h *Handle) SetCurrentState(s State) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.State = s
	return h
}

func (h *Handle) SetControlAccept(a Accept) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Accepts = a
	return h
}

func (h *Handle) SetWaitHint(d time.Duration) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.WaitHint = d
	return h
}

func (h *Handle) SetExitCode(code uint32) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.ExitCode = code
	return h
}

func (h *Handle) SetMessage(msg string) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Message = msg
	return h
}

// SetStatus pushes the accumulated record to the service manager.
func (h *Handle) SetStatus() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Type == TypeUnset {
		return ErrServiceTypeUnset
	}
	if err := h.reporter.Report(h.status); err != nil {
		return fmt.Errorf("failed to report service status: %w", err)
	}
	return nil
}

// Status returns the record as last set, whether or not it was pushed.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
