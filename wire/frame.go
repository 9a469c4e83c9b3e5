// Package wire implements the length-prefixed frame codec carrying raw
// handshake messages and, after the handshake, encrypted channel
// messages (spec §4.4, §6). Framing and keepalive handling are grounded
// on the teacher's RLPx frame codec (header/body decode, a mutex-guarded
// read/write path, and a ticker-driven keepalive), adapted from RLPx's
// fixed AES-CTR/HMAC header to a varint-prefixed body with a pluggable
// symmetric stream cipher.
package wire

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	applog "github.com/datacore/datacore/log"
	"github.com/datacore/datacore/metrics"
)

// MaxFrameBody is the maximum permitted frame body length (spec §4.4, §6).
const MaxFrameBody = 4 * 1024 * 1024

// DefaultKeepalive is the default read-keepalive timeout (spec §4.4).
const DefaultKeepalive = 10 * time.Second

var (
	// ErrFrameTooLarge is returned when a decoded body length exceeds
	// MaxFrameBody.
	ErrFrameTooLarge = errors.New("wire: frame body exceeds maximum size")
	// ErrMalformedFrame is returned on a varint decode failure.
	ErrMalformedFrame = errors.New("wire: malformed frame")
	// ErrKeepaliveTimeout is returned when no bytes arrive within the
	// configured keepalive window.
	ErrKeepaliveTimeout = errors.New("wire: keepalive timeout")
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("wire: connection closed")
)

var log = applog.Default().Module("wire")

// Conn wraps a raw bidirectional byte stream with the length-prefixed
// frame codec, optional post-handshake stream ciphers, and a read
// keepalive timer. It is safe for concurrent ReadFrame and WriteFrame
// calls, but not for concurrent calls to the same method.
type Conn struct {
	stream io.ReadWriteCloser

	rmu sync.Mutex
	wmu sync.Mutex

	cmu      sync.Mutex
	txCipher cipher.Stream
	rxCipher cipher.Stream

	keepalive     time.Duration
	keepaliveMu   sync.Mutex
	lastRead      time.Time
	keepaliveStop chan struct{}
	keepaliveOnce sync.Once
	timedOut      chan struct{}
}

// NewConn wraps stream with the frame codec. keepalive of zero uses
// DefaultKeepalive; a negative value disables the keepalive entirely.
func NewConn(stream io.ReadWriteCloser, keepalive time.Duration) *Conn {
	if keepalive == 0 {
		keepalive = DefaultKeepalive
	}
	c := &Conn{
		stream:        stream,
		keepalive:     keepalive,
		lastRead:      time.Now(),
		keepaliveStop: make(chan struct{}),
		timedOut:      make(chan struct{}),
	}
	if keepalive > 0 {
		go c.keepaliveLoop()
	}
	return c
}

// SetCiphers installs the post-handshake transport ciphers. Any bytes
// read after this call are decrypted with rx; any bytes written are
// encrypted with tx. Per spec §4.4, this module's blocking-read model
// never buffers unread bytes across a SetCiphers call (each ReadFrame
// call consumes exactly one frame from the stream), so there is no
// retroactive-cipher-application step to perform here; that step only
// matters to a poll-based reader that might have buffered part of a
// post-handshake frame while still draining the handshake's raw bytes.
func (c *Conn) SetCiphers(tx, rx cipher.Stream) {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.txCipher = tx
	c.rxCipher = rx
}

// ReadFrame reads one length-prefixed frame from the stream.
func (c *Conn) ReadFrame() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	length, err := c.readUvarint()
	if err != nil {
		return nil, err
	}
	if length > MaxFrameBody {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.stream, body); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	c.markRead()

	c.cmu.Lock()
	rx := c.rxCipher
	c.cmu.Unlock()
	if rx != nil {
		rx.XORKeyStream(body, body)
	}
	metrics.FramesRead.Inc()
	return body, nil
}

// readUvarint reads a varint-encoded length prefix one byte at a time,
// applying the rx cipher to each byte as it is read (the header is part
// of the encrypted stream once ciphers are installed).
func (c *Conn) readUvarint() (uint64, error) {
	var buf [1]byte
	var result uint64
	var shift uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		if _, err := io.ReadFull(c.stream, buf[:]); err != nil {
			return 0, fmt.Errorf("wire: read frame header: %w", err)
		}
		c.markRead()

		c.cmu.Lock()
		rx := c.rxCipher
		c.cmu.Unlock()
		if rx != nil {
			rx.XORKeyStream(buf[:], buf[:])
		}

		b := buf[0]
		result |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return result, nil
		}
		shift += 7
	}
	return 0, ErrMalformedFrame
}

// WriteFrame writes one length-prefixed frame to the stream.
func (c *Conn) WriteFrame(body []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if len(body) > MaxFrameBody {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(body))
	}

	header := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(header, uint64(len(body)))
	header = header[:n]

	encBody := make([]byte, len(body))
	copy(encBody, body)

	c.cmu.Lock()
	tx := c.txCipher
	c.cmu.Unlock()
	if tx != nil {
		tx.XORKeyStream(header, header)
		tx.XORKeyStream(encBody, encBody)
	}

	if _, err := c.stream.Write(header); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := c.stream.Write(encBody); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	metrics.FramesWritten.Inc()
	return nil
}

// markRead resets the keepalive timer. Per spec §4.4 and the "keepalive
// timer on write" open question, writes never reset this timer — only
// successful reads do.
func (c *Conn) markRead() {
	c.keepaliveMu.Lock()
	c.lastRead = time.Now()
	c.keepaliveMu.Unlock()
}

func (c *Conn) keepaliveLoop() {
	ticker := time.NewTicker(c.keepalive / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.keepaliveMu.Lock()
			elapsed := time.Since(c.lastRead)
			c.keepaliveMu.Unlock()
			if elapsed > c.keepalive {
				log.Warn("keepalive timeout, closing connection", "elapsed", elapsed)
				metrics.KeepaliveTimeouts.Inc()
				close(c.timedOut)
				_ = c.Close()
				return
			}
		case <-c.keepaliveStop:
			return
		}
	}
}

// TimedOut returns a channel that is closed when the keepalive timer
// expires.
func (c *Conn) TimedOut() <-chan struct{} { return c.timedOut }

// Close closes the underlying stream and stops the keepalive loop.
func (c *Conn) Close() error {
	c.keepaliveOnce.Do(func() { close(c.keepaliveStop) })
	return c.stream.Close()
}
