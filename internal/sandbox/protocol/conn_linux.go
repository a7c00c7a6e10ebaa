//go:build linux

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Conn wraps a raw AF_UNIX SOCK_STREAM file descriptor (one end of the
// control socketpair between the Sandbox engine and the Zygote) with the
// length-prefixed JSON framing plus SCM_RIGHTS FD passing the spec's
// "Zygote request loop" requires for handing over the stdio triple of a
// spawned job (§4.1).
type Conn struct {
	fd int
}

// NewConn takes ownership of fd; Close()ing the Conn closes it.
func NewConn(fd int) *Conn { return &Conn{fd: fd} }

func (c *Conn) Fd() int { return c.fd }

func (c *Conn) Close() error { return unix.Close(c.fd) }

// WriteMessage frames and writes v as one length-prefixed JSON message.
func (c *Conn) WriteMessage(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if err := writeFull(c.fd, lenBuf[:]); err != nil {
		return err
	}
	return writeFull(c.fd, body)
}

// ReadMessage reads one length-prefixed JSON message into v.
func (c *Conn) ReadMessage(v interface{}) error {
	var lenBuf [4]byte
	if err := readFull(c.fd, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 16<<20 {
		return fmt.Errorf("frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if err := readFull(c.fd, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// SendFDs passes a set of file descriptors out-of-band via SCM_RIGHTS,
// along with one marker byte of ordinary data (required for Recvmsg to see
// the ancillary data on Linux). The receiver gets its own duplicated
// descriptors; the sender's fds are closed here once sent, so sending
// consumes them.
func (c *Conn) SendFDs(fds []int) error {
	rights := unix.UnixRights(fds...)
	if err := unix.Sendmsg(c.fd, []byte{0}, rights, nil, 0); err != nil {
		return fmt.Errorf("sendmsg: %w", err)
	}
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
	return nil
}

// RecvFDs receives up to max file descriptors sent by SendFDs.
func (c *Conn) RecvFDs(max int) ([]int, error) {
	oob := make([]byte, unix.CmsgSpace(max*4))
	buf := make([]byte, 1)
	_, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, 0)
	if err != nil {
		return nil, fmt.Errorf("recvmsg: %w", err)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

func writeFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		buf = buf[n:]
	}
	return nil
}

// Socketpair creates a connected pair of AF_UNIX/SOCK_STREAM descriptors,
// returned as raw Conns. One end typically stays with the parent, the
// other is handed to a child via ExtraFiles (which dup2s it to a fixed fd
// number, so the Conn wrapping the child's end is usually reconstructed
// from that fd number in the child rather than from this return value).
func Socketpair() (parent *Conn, child *Conn, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	return NewConn(fds[0]), NewConn(fds[1]), nil
}
