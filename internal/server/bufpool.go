package server

import (
	"bufio"
	"io"
	"sync"
)

// readBufSize/writeBufSize match the teacher's BytePool default buffer
// size; bufio.Reader/Writer wrap the connection directly instead of a
// raw byte pool since that's what the protocol parser and wire writer
// operate on.
const (
	readBufSize  = 4096
	writeBufSize = 4096
)

// bufPool recycles the bufio.Reader/Writer pairs handed to each
// connDriver, avoiding a fresh allocation per accepted connection under
// sustained connection churn — the same motivation as the teacher's
// sync.Pool-backed BytePool, retargeted at the buffered I/O types this
// server actually uses.
type bufPool struct {
	readers sync.Pool
	writers sync.Pool
}

func newBufPool() *bufPool {
	return &bufPool{
		readers: sync.Pool{New: func() any { return bufio.NewReaderSize(nil, readBufSize) }},
		writers: sync.Pool{New: func() any { return bufio.NewWriterSize(nil, writeBufSize) }},
	}
}

func (p *bufPool) getReader(r io.Reader) *bufio.Reader {
	br := p.readers.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

func (p *bufPool) putReader(br *bufio.Reader) {
	br.Reset(nil)
	p.readers.Put(br)
}

func (p *bufPool) getWriter(w io.Writer) *bufio.Writer {
	bw := p.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

func (p *bufPool) putWriter(bw *bufio.Writer) {
	bw.Reset(nil)
	p.writers.Put(bw)
}
