package protocol

import (
	"bufio"
	"bytes"
	"io"
)

// DefaultMaxLineLength bounds the command line the parser will accept
// before giving up and returning a framing error, resolving the open
// parser-safety question in spec.md §9 (an unbounded line is a memory
// exhaustion vector).
const DefaultMaxLineLength = 4096

// Parser reads Commands off a connection's bufio.Reader. It holds no
// per-command state; a single Parser may be reused across an entire
// connection's lifetime.
type Parser struct {
	MaxLineLength int
}

// NewParser constructs a Parser bounded at maxLineLength; a value of 0
// falls back to DefaultMaxLineLength.
func NewParser(maxLineLength int) *Parser {
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}
	return &Parser{MaxLineLength: maxLineLength}
}

// ReadCommand reads and parses exactly one command off r, including the
// trailing data block for storage commands (spec.md §4.3's two-phase
// read). Framing problems are reported as *Error (KindUnknownCommand or
// KindClientError, or KindServerError for an oversized declared value); io errors (including io.EOF on a clean connection
// close) are returned unwrapped so the caller can distinguish "client
// disconnected" from "client sent garbage".
func (p *Parser) ReadCommand(r *bufio.Reader) (*Command, error) {
	line, err := p.readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, errBadCommandLine
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, errBadCommandLine
	}

	verb := Verb(fields[0])
	switch verb {
	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend:
		return p.parseStorage(r, verb, fields)
	case VerbCas:
		return p.parseCas(r, fields)
	case VerbGet, VerbGets:
		return parseGet(verb, fields)
	case VerbDelete:
		return parseDelete(fields)
	case VerbIncr, VerbDecr:
		return parseArithmetic(verb, fields)
	case VerbTouch:
		return parseTouch(fields)
	case VerbFlushAll:
		return parseFlushAll(fields)
	case VerbVersion:
		return parseBare(VerbVersion, fields)
	case VerbQuit:
		return parseBare(VerbQuit, fields)
	case VerbVerbosity:
		return parseVerbosity(fields)
	default:
		return nil, errUnknownCommand
	}
}

// readLine reads up to and including a CRLF (a bare LF is also accepted,
// as real memcached clients do), stripping the terminator, and enforces
// MaxLineLength along the way so a client cannot force unbounded
// buffering by never sending a newline.
func (p *Parser) readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > p.MaxLineLength {
			return nil, newClientError("line too long")
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && len(chunk) > 0 {
			// Connection closed mid-line: treat as a framing error, not
			// a clean disconnect.
			return nil, errBadCommandLine
		}
		return nil, err
	}
	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	return buf, nil
}

// readPayload performs the second phase of a storage command's read:
// exactly n octets followed by a trailing CRLF. A malformed trailer
// leaves the connection intact — the parser resyncs by discarding up to
// the next newline — per spec.md §7 kind 1 (framing errors never kill
// the connection by themselves).
func (p *Parser) readPayload(r *bufio.Reader, n uint32) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	trailer := make([]byte, 2)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, err
	}
	if trailer[0] != '\r' || trailer[1] != '\n' {
		p.resync(r)
		return nil, errBadDataChunk
	}
	return data, nil
}

// resync discards bytes up to and including the next newline so a
// misframed data chunk doesn't desynchronize every subsequent command on
// the connection.
func (p *Parser) resync(r *bufio.Reader) {
	for {
		_, err := r.ReadSlice('\n')
		if err != bufio.ErrBufferFull {
			return
		}
	}
}

func (p *Parser) parseStorage(r *bufio.Reader, verb Verb, fields [][]byte) (*Command, error) {
	// <verb> <key> <flags> <exptime> <bytes> [noreply]
	if len(fields) < 5 || len(fields) > 6 {
		return nil, errBadCommandLine
	}
	cmd, err := buildStorageFields(verb, fields[1], fields[2], fields[3], fields[4])
	if err != nil {
		return nil, err
	}
	if len(fields) == 6 {
		if !bytes.Equal(fields[5], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return p.attachPayload(r, cmd)
}

func (p *Parser) parseCas(r *bufio.Reader, fields [][]byte) (*Command, error) {
	// cas <key> <flags> <exptime> <bytes> <cas unique> [noreply]
	if len(fields) < 6 || len(fields) > 7 {
		return nil, errBadCommandLine
	}
	cmd, err := buildStorageFields(VerbCas, fields[1], fields[2], fields[3], fields[4])
	if err != nil {
		return nil, err
	}
	casUnique, ok := parseUint64(fields[5])
	if !ok {
		return nil, errBadCommandLine
	}
	cmd.CasUnique = casUnique
	if len(fields) == 7 {
		if !bytes.Equal(fields[6], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return p.attachPayload(r, cmd)
}

// buildStorageFields only validates the command line's own grammar. The
// bytes field is intentionally NOT capped here: rejecting before the
// payload is read would leave cmd.Bytes octets (+ trailing CRLF) sitting
// unconsumed on the socket, desyncing the next ReadCommand call. The
// MaxValueBytes check happens in attachPayload instead, after the
// payload has been drained either way.
func buildStorageFields(verb Verb, key, flagsTok, exptimeTok, bytesTok []byte) (*Command, error) {
	if !validateKey(key) {
		return nil, errBadCommandLine
	}
	flags, ok := parseUint32(flagsTok)
	if !ok {
		return nil, errBadCommandLine
	}
	exptime, ok := parseInt32(exptimeTok)
	if !ok {
		return nil, errBadCommandLine
	}
	n, ok := parseUint32(bytesTok)
	if !ok {
		return nil, errBadCommandLine
	}
	return &Command{
		Verb:    verb,
		Key:     key,
		Flags:   flags,
		Exptime: exptime,
		Bytes:   n,
	}, nil
}

// attachPayload performs the two-phase read for a just-parsed storage
// command line. It always drains exactly cmd.Bytes+2 octets off the
// socket before reporting any size-cap rejection, so the connection
// stays parseable afterward (spec.md §4.4: a SERVER_ERROR must behave
// identically to CLIENT_ERROR from a framing standpoint — the sibling
// errBadDataChunk path achieves the same thing via p.resync). Errors
// here may be the plain io error from a dropped connection, or
// *Error(errBadDataChunk)/(errObjectTooLarge) for a misframed trailer or
// an oversized declared length.
func (p *Parser) attachPayload(r *bufio.Reader, cmd *Command) (*Command, error) {
	if cmd.Verb.IsSizeCapped() && cmd.Bytes > MaxValueBytes {
		if err := p.drainPayload(r, cmd.Bytes); err != nil {
			return nil, err
		}
		return nil, errObjectTooLarge
	}
	data, err := p.readPayload(r, cmd.Bytes)
	if err != nil {
		return nil, err
	}
	cmd.Data = data
	return cmd, nil
}

// drainPayload discards n octets plus the trailing CRLF without
// validating the trailer's content, used when a declared payload is
// already known to be rejected and only needs to be consumed to keep the
// connection in sync.
func (p *Parser) drainPayload(r *bufio.Reader, n uint32) error {
	_, err := io.CopyN(io.Discard, r, int64(n)+2)
	return err
}

func parseGet(verb Verb, fields [][]byte) (*Command, error) {
	// get <key>*1  |  gets <key>+
	if len(fields) < 2 {
		return nil, errBadCommandLine
	}
	keys := make([][]byte, 0, len(fields)-1)
	for _, k := range fields[1:] {
		if !validateKey(k) {
			return nil, errBadCommandLine
		}
		keys = append(keys, k)
	}
	return &Command{Verb: verb, Keys: keys}, nil
}

func parseDelete(fields [][]byte) (*Command, error) {
	// delete <key> [noreply]
	if len(fields) < 2 || len(fields) > 3 {
		return nil, errBadCommandLine
	}
	if !validateKey(fields[1]) {
		return nil, errBadCommandLine
	}
	cmd := &Command{Verb: VerbDelete, Key: fields[1]}
	if len(fields) == 3 {
		if !bytes.Equal(fields[2], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseArithmetic(verb Verb, fields [][]byte) (*Command, error) {
	// incr|decr <key> <value> [noreply]
	if len(fields) < 3 || len(fields) > 4 {
		return nil, errBadCommandLine
	}
	if !validateKey(fields[1]) {
		return nil, errBadCommandLine
	}
	delta, ok := parseUint64(fields[2])
	if !ok {
		return nil, errBadCommandLine
	}
	cmd := &Command{Verb: verb, Key: fields[1], Delta: delta}
	if len(fields) == 4 {
		if !bytes.Equal(fields[3], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseTouch(fields [][]byte) (*Command, error) {
	// touch <key> <exptime> [noreply]
	if len(fields) < 3 || len(fields) > 4 {
		return nil, errBadCommandLine
	}
	if !validateKey(fields[1]) {
		return nil, errBadCommandLine
	}
	exptime, ok := parseInt32(fields[2])
	if !ok {
		return nil, errBadCommandLine
	}
	cmd := &Command{Verb: VerbTouch, Key: fields[1], Exptime: exptime}
	if len(fields) == 4 {
		if !bytes.Equal(fields[3], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return cmd, nil
}

func parseFlushAll(fields [][]byte) (*Command, error) {
	// flush_all [delay] [noreply]
	if len(fields) > 3 {
		return nil, errBadCommandLine
	}
	cmd := &Command{Verb: VerbFlushAll}
	rest := fields[1:]

	switch len(rest) {
	case 0:
		return cmd, nil
	case 1:
		if bytes.Equal(rest[0], []byte("noreply")) {
			cmd.NoReply = true
			return cmd, nil
		}
		delay, ok := parseUint32(rest[0])
		if !ok {
			return nil, errBadCommandLine
		}
		cmd.FlushDelay = delay
		return cmd, nil
	default: // len(rest) == 2
		delay, ok := parseUint32(rest[0])
		if !ok || !bytes.Equal(rest[1], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.FlushDelay = delay
		cmd.NoReply = true
		return cmd, nil
	}
}

func parseBare(verb Verb, fields [][]byte) (*Command, error) {
	if len(fields) != 1 {
		return nil, errBadCommandLine
	}
	return &Command{Verb: verb}, nil
}

func parseVerbosity(fields [][]byte) (*Command, error) {
	// verbosity <level> [noreply]
	if len(fields) < 2 || len(fields) > 3 {
		return nil, errBadCommandLine
	}
	level, ok := parseUint32(fields[1])
	if !ok {
		return nil, errBadCommandLine
	}
	cmd := &Command{Verb: VerbVerbosity, VerbosityLevel: level}
	if len(fields) == 3 {
		if !bytes.Equal(fields[2], []byte("noreply")) {
			return nil, errBadCommandLine
		}
		cmd.NoReply = true
	}
	return cmd, nil
}
