package codexexec

import "strings"

// State is a step of the invocation state machine.
type State int

const (
	StateIdle State = iota
	StateResolvingPrompt
	StateResolvingScratch
	StateBuildingCommand
	StateSpawning
	StateRunning
	StateFinalizing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateResolvingPrompt:  "resolving-prompt",
	StateResolvingScratch: "resolving-scratch",
	StateBuildingCommand:  "building-command",
	StateSpawning:         "spawning",
	StateRunning:          "running",
	StateFinalizing:       "finalizing",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Kind classifies a failure.
type Kind int

const (
	// KindConfig is an invalid request, found before anything is created.
	KindConfig Kind = iota + 1
	// KindResolution is a failure to load inputs or prepare scratch files.
	KindResolution
	// KindSubprocess is a tool that failed to start or exited non-zero.
	KindSubprocess
	// KindFinalization is a failure to read or publish the final message.
	KindFinalization
	// KindCleanup is a failure to release scratch resources after an
	// otherwise successful run.
	KindCleanup
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindResolution:
		return "resolution"
	case KindSubprocess:
		return "subprocess"
	case KindFinalization:
		return "finalization"
	case KindCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return s.kind.String() + " error" }

// Sentinels matching an *Error of the corresponding Kind with errors.Is.
var (
	ErrConfig       error = &kindSentinel{KindConfig}
	ErrResolution   error = &kindSentinel{KindResolution}
	ErrSubprocess   error = &kindSentinel{KindSubprocess}
	ErrFinalization error = &kindSentinel{KindFinalization}
	ErrCleanup      error = &kindSentinel{KindCleanup}
)

// Error is the failure returned by Run.
type Error struct {
	Kind  Kind
	State State
	Op    string
	// ExitCode is set for KindSubprocess; -1 when the tool never started or
	// was killed by a signal.
	ExitCode int
	Err      error

	// Cleanup holds failures met while releasing scratch resources after
	// the primary failure. They are also logged.
	Cleanup []error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Cleanup) > 0 {
		b.WriteString(" (cleanup also failed: ")
		for i, cerr := range e.Cleanup {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(cerr.Error())
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	s, ok := target.(*kindSentinel)
	return ok && s.kind == e.Kind
}

func newError(kind Kind, state State, op string, err error) *Error {
	return &Error{Kind: kind, State: state, Op: op, ExitCode: -1, Err: err}
}
