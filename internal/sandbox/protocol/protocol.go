// Package protocol defines the wire format spoken between the Sandbox
// engine (parent) and the Zygote process over their control socket: a
// length-prefixed JSON framing, the named wait classes from spec §9, and
// the Spawn/Poll/Exit request/response message shapes (spec §4.1, "Zygote
// request loop").
package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"jjsgo/internal/sandbox/spec"
)

// WaitClass names one of the handshake phases the Zygote and its setup
// helper use to stay in lockstep, per spec §9: "named wait classes".
type WaitClass string

const (
	PidMapReadyForSetup WaitClass = "PID_MAP_READY_FOR_SETUP"
	PidMapCreated       WaitClass = "PID_MAP_CREATED"
	SetupFinished       WaitClass = "SETUP_FINISHED"
	ExecvePermitted     WaitClass = "EXECVE_PERMITTED"
)

// RequestKind tags a Zygote request.
type RequestKind string

const (
	RequestSpawn RequestKind = "spawn"
	RequestPoll  RequestKind = "poll"
	RequestKill  RequestKind = "kill"
	RequestExit  RequestKind = "exit"
)

// Request is one frame sent from the Sandbox engine to the Zygote.
type Request struct {
	Kind  RequestKind   `json:"kind"`
	Spawn *SpawnRequest `json:"spawn,omitempty"`
	Poll  *PollRequest  `json:"poll,omitempty"`
	Kill  *KillRequest  `json:"kill,omitempty"`
}

// KillRequest asks the Zygote to signal pid from inside its own PID
// namespace: the host side never sees nested PIDs, so it cannot signal a
// job directly and must route through the Zygote that spawned it.
type KillRequest struct {
	Pid    int `json:"pid"`
	Signal int `json:"signal"`
}

// SpawnRequest asks the Zygote to fork+exec one job. The stdio triple
// itself travels out-of-band via SCM_RIGHTS on the same socket, immediately
// after this frame; Job carries only the non-FD description.
type SpawnRequest struct {
	Job spec.JobQuery `json:"job"`
}

// PollRequest asks the Zygote to wait for pid, up to TimeoutMs (0 means
// "return immediately if not finished").
type PollRequest struct {
	Pid       int `json:"pid"`
	TimeoutMs int `json:"timeout_ms"`
}

// ResponseKind tags a Zygote response.
type ResponseKind string

const (
	ResponseReady   ResponseKind = "ready"
	ResponseSpawned ResponseKind = "spawned"
	ResponseWait    ResponseKind = "wait"
	ResponseError   ResponseKind = "error"
)

// Response is one frame sent from the Zygote back to the Sandbox engine.
type Response struct {
	Kind    ResponseKind `json:"kind"`
	Spawned *SpawnedInfo `json:"spawned,omitempty"`
	Wait    *WaitInfo    `json:"wait,omitempty"`
	Error   string       `json:"error,omitempty"`
	Policy  bool         `json:"policy,omitempty"` // true: spec's "Sandbox" class, false: "System"
}

// SpawnedInfo is the Zygote's reply to a successful Spawn (spec §4.1
// "Spawn from Zygote (parent side in C)": JobStartupInfo{pid}).
type SpawnedInfo struct {
	Pid int `json:"pid"`
}

// WaitInfo is the Zygote's reply to Poll: either the job is still running
// (Finished=false), or it has an exit code/signal encoding.
type WaitInfo struct {
	Finished bool `json:"finished"`
	Code     int  `json:"code"` // normal exit: status; signalled: -signo
}

// Writer frames JSON messages with a 4-byte big-endian length prefix.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: bufio.NewWriter(w)} }

func (w *Writer) WriteMessage(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(body); err != nil {
		return err
	}
	return w.w.Flush()
}

// Reader reads length-prefixed JSON frames.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

func (r *Reader) ReadMessage(v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > 16<<20 {
		return fmt.Errorf("frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
