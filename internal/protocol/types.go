// Package protocol implements the memcached text-protocol parser and the
// wire-format constants described in spec.md §4.3 and §6: a line-based,
// CRLF-terminated dialect with a two-phase read for value-carrying
// commands (command line, then exactly `bytes` octets of payload plus a
// trailing CRLF).
package protocol

// Verb identifies a recognized command-line leading token. Verbs are
// case-sensitive lowercase, per spec.md §4.3.
type Verb string

const (
	VerbSet       Verb = "set"
	VerbAdd       Verb = "add"
	VerbReplace   Verb = "replace"
	VerbAppend    Verb = "append"
	VerbPrepend   Verb = "prepend"
	VerbCas       Verb = "cas"
	VerbGet       Verb = "get"
	VerbGets      Verb = "gets"
	VerbDelete    Verb = "delete"
	VerbIncr      Verb = "incr"
	VerbDecr      Verb = "decr"
	VerbTouch     Verb = "touch"
	VerbFlushAll  Verb = "flush_all"
	VerbVersion   Verb = "version"
	VerbQuit      Verb = "quit"
	VerbVerbosity Verb = "verbosity"
)

// storageVerbs are the value-carrying commands that require the parser's
// two-phase read (spec.md §4.3).
var storageVerbs = map[Verb]bool{
	VerbSet:     true,
	VerbAdd:     true,
	VerbReplace: true,
	VerbAppend:  true,
	VerbPrepend: true,
	VerbCas:     true,
}

// sizeCappedVerbs are the storage verbs against which the 1 MiB
// compatibility ceiling on `bytes` is enforced (spec.md §4.3: append and
// prepend are deliberately exempt, a preserved known deviation).
var sizeCappedVerbs = map[Verb]bool{
	VerbSet:     true,
	VerbAdd:     true,
	VerbReplace: true,
	VerbCas:     true,
}

// MaxValueBytes is the compatibility ceiling on the `bytes` field for
// set/add/replace/cas (spec.md §4.3).
const MaxValueBytes = 1 << 20

// Command is a fully parsed, well-typed request. Only the fields
// meaningful to Verb are populated; the rest are left at their zero value.
type Command struct {
	Verb Verb

	// Single-key commands (set family, cas, delete, incr/decr, touch).
	Key []byte

	// get/gets: one or more keys.
	Keys [][]byte

	Flags     uint32
	Exptime   int32
	Bytes     uint32
	CasUnique uint64
	Delta     uint64
	Data      []byte // payload for the value-carrying commands

	FlushDelay     uint32
	VerbosityLevel uint32

	NoReply bool
}

// IsStorage reports whether Verb requires a two-phase payload read.
func (v Verb) IsStorage() bool {
	return storageVerbs[v]
}

// IsSizeCapped reports whether Verb enforces MaxValueBytes on Bytes.
func (v Verb) IsSizeCapped() bool {
	return sizeCappedVerbs[v]
}
