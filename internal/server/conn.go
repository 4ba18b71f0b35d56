package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/ketralnis/gomemcached/internal/protocol"
	"github.com/ketralnis/gomemcached/internal/store"
	"github.com/ketralnis/gomemcached/internal/version"
)

// connDriver is the Connection Driver of spec.md §4.6: it owns one TCP
// connection's read/parse/execute/reply loop. One goroutine per
// connection, never shared.
type connDriver struct {
	id     xid.ID
	nc     net.Conn
	cfg    driverConfig
	store  *store.Store
	parser *protocol.Parser
	writer *protocol.Writer
	reader *bufio.Reader
	s      *Server
}

type driverConfig struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (s *Server) handleConnection(nc net.Conn) {
	s.stats.connectionOpened()

	br := s.bufs.getReader(nc)
	bw := s.bufs.getWriter(nc)
	defer s.bufs.putReader(br)
	defer s.bufs.putWriter(bw)

	d := &connDriver{
		id:     xid.New(),
		nc:     nc,
		store:  s.store,
		parser: s.parser,
		reader: br,
		writer: protocol.NewWriter(bw),
		s:      s,
		cfg: driverConfig{
			readTimeout:  s.cfg.ReadTimeout,
			writeTimeout: s.cfg.WriteTimeout,
		},
	}
	d.run()
}

func (d *connDriver) run() {
	defer d.nc.Close()

	log := d.s.logger.With("conn_id", d.id.String(), "remote_addr", d.nc.RemoteAddr().String())
	log.Infow("conn.open")

	commands := 0
	defer func() {
		log.Infow("conn.close", "commands", commands)
	}()

	for {
		if d.cfg.readTimeout > 0 {
			d.nc.SetReadDeadline(time.Now().Add(d.cfg.readTimeout))
		}

		cmd, err := d.parser.ReadCommand(d.reader)
		if err != nil {
			if d.handleReadError(log, err) {
				return
			}
			if err := d.writer.Flush(); err != nil {
				return
			}
			continue
		}

		commands++
		if cmd.Verb == protocol.VerbQuit {
			return
		}

		d.dispatch(log, cmd)

		if d.cfg.writeTimeout > 0 {
			d.nc.SetWriteDeadline(time.Now().Add(d.cfg.writeTimeout))
		}
		if err := d.writer.Flush(); err != nil {
			log.Warnw("write error", "error", err)
			return
		}
	}
}

// handleReadError reports a protocol framing error to the client and
// returns false (keep the connection open, per spec.md §7 kind 1/2), or
// logs a genuine I/O failure and returns true (close the connection).
func (d *connDriver) handleReadError(log logger, err error) bool {
	perr, ok := err.(*protocol.Error)
	if !ok {
		if !errors.Is(err, io.EOF) {
			log.Warnw("connection read error", "error", err)
		}
		return true
	}

	log.Warnw("protocol error", "error", perr.Msg)
	switch perr.Kind {
	case protocol.KindUnknownCommand:
		d.writer.Error()
	case protocol.KindClientError:
		d.writer.ClientError(perr.Msg)
	case protocol.KindServerError:
		d.writer.ServerError(perr.Msg)
	}
	return false
}

// logger is the minimal surface of *zap.SugaredLogger this file needs,
// so handleReadError can be exercised with a fake in tests.
type logger interface {
	Infow(msg string, kv ...any)
	Warnw(msg string, kv ...any)
}

func (d *connDriver) dispatch(log logger, cmd *protocol.Command) {
	switch cmd.Verb {
	case protocol.VerbSet:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Set(cmd.Key, cmd.Flags, cmd.Exptime, cmd.Data))
	case protocol.VerbAdd:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Add(cmd.Key, cmd.Flags, cmd.Exptime, cmd.Data))
	case protocol.VerbReplace:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Replace(cmd.Key, cmd.Flags, cmd.Exptime, cmd.Data))
	case protocol.VerbCas:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Cas(cmd.Key, cmd.Flags, cmd.Exptime, cmd.CasUnique, cmd.Data))
	case protocol.VerbAppend:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Append(cmd.Key, cmd.Data))
	case protocol.VerbPrepend:
		d.s.stats.recordSet()
		d.replyStorage(cmd, d.store.Prepend(cmd.Key, cmd.Data))
	case protocol.VerbGet:
		d.s.stats.recordGet()
		d.replyGet(cmd.Keys, false)
	case protocol.VerbGets:
		d.s.stats.recordGet()
		d.replyGet(cmd.Keys, true)
	case protocol.VerbDelete:
		d.s.stats.recordDelete()
		d.replyOutcome(cmd.NoReply, d.store.Delete(cmd.Key))
	case protocol.VerbIncr:
		d.replyArithmetic(cmd, log, true)
	case protocol.VerbDecr:
		d.replyArithmetic(cmd, log, false)
	case protocol.VerbTouch:
		d.replyOutcome(cmd.NoReply, d.store.Touch(cmd.Key, cmd.Exptime))
	case protocol.VerbFlushAll:
		d.store.FlushAll()
		if !cmd.NoReply {
			d.writer.OK()
		}
	case protocol.VerbVersion:
		d.writer.Version(version.Version)
	case protocol.VerbVerbosity:
		if !cmd.NoReply {
			d.writer.OK()
		}
	}
}

// replyStorage writes the reply for a set-family command, handling the
// noreply suppression (applies to every outcome of a successfully parsed
// command, including resource exhaustion) per spec.md §7.
func (d *connDriver) replyStorage(cmd *protocol.Command, outcome store.Outcome, err error) {
	if err != nil {
		if cmd.NoReply {
			return
		}
		if errors.Is(err, store.ErrOutOfMemory) {
			d.writer.ServerError("out of memory")
		} else {
			d.writer.ServerError(err.Error())
		}
		return
	}
	d.replyOutcome(cmd.NoReply, outcome)
}

func (d *connDriver) replyOutcome(noReply bool, outcome store.Outcome) {
	if noReply {
		return
	}
	switch outcome {
	case store.Stored:
		d.writer.Stored()
	case store.NotStored:
		d.writer.NotStored()
	case store.Exists:
		d.writer.Exists()
	case store.NotFound:
		d.writer.NotFound()
	case store.Deleted:
		d.writer.Deleted()
	case store.Touched:
		d.writer.Touched()
	}
}

func (d *connDriver) replyArithmetic(cmd *protocol.Command, log logger, incr bool) {
	var next uint64
	var outcome store.Outcome
	var err error
	if incr {
		next, outcome, err = d.store.Incr(cmd.Key, cmd.Delta)
	} else {
		next, outcome, err = d.store.Decr(cmd.Key, cmd.Delta)
	}
	if err != nil {
		if cmd.NoReply {
			return
		}
		if errors.Is(err, store.ErrNotNumeric) {
			d.writer.ClientError("cannot increment or decrement non-numeric value")
		} else {
			d.writer.ServerError(err.Error())
		}
		return
	}
	if cmd.NoReply {
		return
	}
	if outcome == store.NotFound {
		d.writer.NotFound()
		return
	}
	d.writer.Arithmetic(next)
}

// replyGet always replies regardless of any noreply-like flag: get/gets
// carry no noreply token in the grammar (spec.md §4.3).
func (d *connDriver) replyGet(keys [][]byte, withCas bool) {
	var items []store.Item
	if withCas {
		items = d.store.Gets(keys)
	} else {
		items = d.store.Get(keys)
	}
	for _, item := range items {
		d.writer.Value(item.Key, item.Flags, item.Value, item.Cas, withCas)
	}
	d.writer.End()
}
