package handler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/internal/metrics"
)

// Sink is the side of a connection a FileTransfer writes to.
// *conn.Connection implements it.
type Sink interface {
	// Write submits chunk and calls ack on the loop once it is flushed.
	Write(chunk []byte, ack conn.AckFunc)
	// End marks the response body complete.
	End()
	OnDestroyed(fn func(*conn.Connection)) *conn.Subscription
	Destroyed() bool
	// Post schedules fn on the loop the sink lives on.
	Post(fn func()) bool
}

type TransferState int

const (
	StateIdle TransferState = iota
	StateWriting
	StateDraining
	StateFinishing
	StateFailed
	StateTerminated
)

func (s TransferState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateDraining:
		return "draining"
	case StateFinishing:
		return "finishing"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("TransferState(%d)", int(s))
	}
}

type TransferOption func(*FileTransfer)

// WithTransferMetrics records progress and outcome on m.
func WithTransferMetrics(m *metrics.Metrics) TransferOption {
	return func(t *FileTransfer) { t.metrics = m }
}

// OnFinish registers fn to run when the transfer terminates, whatever the
// outcome. It runs on the loop, or on the reading goroutine if the loop was
// stopped while a read was pending.
func OnFinish(fn func(*FileTransfer)) TransferOption {
	return func(t *FileTransfer) { t.onFinish = fn }
}

// FileTransfer pumps the content of a stream to a sink one buffer at a time.
// The next chunk is read only after the previous one was acknowledged, so at
// most one buffer's worth of data is held regardless of file size or client
// speed. A transfer owns itself: it closes the stream and releases its buffer
// when the file is done, on any I/O error, or when the connection is
// destroyed.
//
// The stream's Close must be safe to call while a Read is blocked, which
// holds for *os.File.
type FileTransfer struct {
	stream   io.ReadCloser
	sink     Sink
	buf      []byte
	inFlight int
	sent     int64
	state    TransferState
	outcome  string
	err      error
	sub      *conn.Subscription
	metrics  *metrics.Metrics
	onFinish func(*FileTransfer)
	once     sync.Once
	done     chan struct{}
}

// NewFileTransfer starts transferring stream to sink using chunks of at most
// bufferSize bytes. It must be called on the sink's loop and returns without
// waiting for any I/O.
func NewFileTransfer(stream io.ReadCloser, sink Sink, bufferSize int, opts ...TransferOption) *FileTransfer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	t := &FileTransfer{
		stream: stream,
		sink:   sink,
		buf:    make([]byte, bufferSize),
		state:  StateIdle,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.metrics.TransferStarted()
	if sink.Destroyed() {
		t.terminate(metrics.OutcomeAborted, nil)
		return t
	}
	t.sub = sink.OnDestroyed(func(*conn.Connection) { t.abort() })
	t.readNext()
	return t
}

// State is only meaningful on the loop.
func (t *FileTransfer) State() TransferState { return t.state }

// BytesSent counts acknowledged bytes.
func (t *FileTransfer) BytesSent() int64 { return t.sent }

// Outcome is one of the metrics.Outcome* values once the transfer is done.
func (t *FileTransfer) Outcome() string { return t.outcome }

// Err returns the read or write error that ended the transfer. A transfer
// cut short by the connection going away has no error.
func (t *FileTransfer) Err() error { return t.err }

// Done is closed when the transfer has terminated.
func (t *FileTransfer) Done() <-chan struct{} { return t.done }

func (t *FileTransfer) readNext() {
	stream, buf := t.stream, t.buf
	go func() {
		// ReadFull keeps reading until the buffer is full, so a short result
		// only ever means the end of the stream.
		n, err := io.ReadFull(stream, buf)
		if !t.sink.Post(func() { t.readDone(n, err) }) {
			// nothing will run on the loop again
			t.release(metrics.OutcomeAborted, nil)
		}
	}()
}

func (t *FileTransfer) readDone(n int, err error) {
	if t.state == StateTerminated {
		return
	}
	if t.sink.Destroyed() {
		t.terminate(metrics.OutcomeAborted, nil)
		return
	}

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		t.state = StateFailed
		t.terminate(metrics.OutcomeFailed, fmt.Errorf("reading file: %w", err))
		return
	}

	if n == 0 {
		t.finish()
		return
	}

	if n < len(t.buf) {
		t.state = StateDraining
	} else {
		t.state = StateWriting
	}
	t.inFlight = n
	t.sink.Write(t.buf[:n], t.writeDone)
}

func (t *FileTransfer) writeDone(err error) {
	if t.state == StateTerminated {
		return
	}
	if err != nil {
		t.state = StateFailed
		t.terminate(metrics.OutcomeFailed, fmt.Errorf("writing chunk: %w", err))
		return
	}

	t.sent += int64(t.inFlight)
	t.metrics.TransferChunk(t.inFlight)
	t.inFlight = 0

	if t.sink.Destroyed() {
		t.terminate(metrics.OutcomeAborted, nil)
		return
	}
	if t.state == StateDraining {
		t.finish()
		return
	}
	t.readNext()
}

func (t *FileTransfer) finish() {
	t.state = StateFinishing
	t.sink.End()
	t.terminate(metrics.OutcomeCompleted, nil)
}

func (t *FileTransfer) abort() {
	if t.state == StateTerminated {
		return
	}
	t.terminate(metrics.OutcomeAborted, nil)
}

func (t *FileTransfer) terminate(outcome string, err error) {
	t.state = StateTerminated
	t.inFlight = 0
	t.buf = nil
	t.sub.Cancel()
	t.sub = nil
	t.release(outcome, err)
}

// release closes the stream and reports the outcome. Only the first call has
// any effect, and unlike terminate it may run off the loop.
func (t *FileTransfer) release(outcome string, err error) {
	t.once.Do(func() {
		t.outcome = outcome
		t.err = err
		_ = t.stream.Close()

		t.metrics.TransferFinished(outcome)
		if t.onFinish != nil {
			t.onFinish(t)
		}
		close(t.done)
	})
}
