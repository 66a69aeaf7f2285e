package speech

import (
	"errors"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrUnsupported      = errors.New("speech recognition not supported")
	ErrNoDevice         = errors.New("no audio capture device")
	ErrInsecureContext  = errors.New("insecure execution context")
	ErrEngineStopped    = errors.New("engine not running")
	ErrSessionActive    = errors.New("a session is already active")
	ErrClosed           = errors.New("controller closed")
)

// ErrorKind names an engine or preflight failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNoSpeech
	KindAborted
	KindNetwork
	KindAudioCapture
	KindNotAllowed
	KindServiceNotAllowed
	KindUnsupported
	KindInsecureContext
)

var kindNames = map[ErrorKind]string{
	KindUnknown:           "unknown",
	KindNoSpeech:          "no-speech",
	KindAborted:           "aborted",
	KindNetwork:           "network",
	KindAudioCapture:      "audio-capture",
	KindNotAllowed:        "not-allowed",
	KindServiceNotAllowed: "service-not-allowed",
	KindUnsupported:       "unsupported",
	KindInsecureContext:   "insecure-context",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseErrorKind maps a recognizer error code to a kind. Unrecognized codes
// map to KindUnknown.
func ParseErrorKind(code string) ErrorKind {
	code = strings.ToLower(strings.TrimSpace(code))
	for kind, name := range kindNames {
		if name == code {
			return kind
		}
	}
	return KindUnknown
}

// ErrorClass is the handling policy for an ErrorKind.
type ErrorClass int

const (
	// ClassTransient errors restart the engine, bounded by MaxRestarts.
	ClassTransient ErrorClass = iota
	// ClassFatal errors abandon the session and reach the caller.
	ClassFatal
	// ClassBenign errors are ignored.
	ClassBenign
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassBenign:
		return "benign"
	default:
		return "transient"
	}
}

// Class reports how the controller reacts to k.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindNotAllowed, KindServiceNotAllowed, KindAudioCapture, KindUnsupported, KindInsecureContext:
		return ClassFatal
	case KindNoSpeech:
		return ClassBenign
	default:
		return ClassTransient
	}
}

// KindFromError maps the package sentinel errors to kinds. Anything else is
// KindUnknown.
func KindFromError(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPermissionDenied):
		return KindNotAllowed
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrNoDevice):
		return KindAudioCapture
	case errors.Is(err, ErrInsecureContext):
		return KindInsecureContext
	default:
		return KindUnknown
	}
}
