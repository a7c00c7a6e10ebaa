// Package ids derives the stable identifiers the sandbox runtime hangs its
// cgroup paths and UID mapping off of.
package ids

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// SandboxUID is the fixed in-sandbox identity every job runs as after setup.
const SandboxUID = 179

const (
	hostUIDBase  = 1_000_000
	hostUIDRange = 2_000_000
)

// NewJailID returns a fresh 16-hex-char jail id, unique per sandbox.
func NewJailID() string {
	id := uuid.New()
	return id.String()[:8] + id.String()[24:32]
}

// DeriveHostUID hashes a jail-id into [1e6, 3e6), the host-side UID/GID the
// in-sandbox UID 179 is mapped to. Matches spec §3/§6: "host UID is
// 1_000_000 + hash(jail-id) mod 2_000_000".
func DeriveHostUID(jailID string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(jailID))
	return hostUIDBase + int(h.Sum64()%hostUIDRange)
}
