package protocol

import "fmt"

// ErrorKind distinguishes the three parser-level error classes from
// spec.md §7: an unrecognized verb (kind 2, rendered "ERROR"), a
// malformed-but-recognized command (kind 1, rendered "CLIENT_ERROR
// <msg>"), and a declared value too large to store (kind 4, rendered
// "SERVER_ERROR <msg>"). All three leave the connection open.
type ErrorKind int

const (
	KindUnknownCommand ErrorKind = iota
	KindClientError
	KindServerError
)

// Error is a protocol-level framing problem: a bad command line, a bad
// key, a bad numeric field, or a misframed data chunk (spec.md §7 kinds
// 1-2), or a declared value past MaxValueBytes (kind 4). It is always reported to the client regardless of any `noreply`
// that might have been present on the offending line, since a line that
// fails to parse cannot be trusted to have been read correctly enough to
// know its noreply flag.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newClientError(format string, args ...any) *Error {
	return &Error{Kind: KindClientError, Msg: fmt.Sprintf(format, args...)}
}

var errUnknownCommand = &Error{Kind: KindUnknownCommand, Msg: "unknown command"}

var (
	errBadCommandLine = newClientError("bad command line format")
	errBadDataChunk   = newClientError("bad data chunk")
	// errObjectTooLarge mirrors the reference server's wording for a
	// `bytes` field past MaxValueBytes; it is a resource-exhaustion
	// outcome (spec.md §7 kind 4), not a malformed-line client error.
	errObjectTooLarge = &Error{Kind: KindServerError, Msg: "object too large for cache"}
)
