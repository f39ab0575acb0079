// Package capability models Tahoe-LAFS capability strings and capability
// sets. Capabilities are opaque, unguessable strings that both name a grid
// object and authorize access to it at a specific permission level. Nothing
// in this package performs I/O.
package capability

import "strings"

// Cap is a single capability string. The zero value means "absent".
type Cap string

// Kind classifies what a capability grants.
type Kind int

const (
	// KindUnknown marks a capability whose prefix this client does not
	// recognize (future or foreign cap formats).
	KindUnknown Kind = iota
	// KindImmutableRead grants read access to immutable content.
	KindImmutableRead
	// KindMutableRead grants read-only access to a mutable object.
	KindMutableRead
	// KindMutableWrite grants read-write access to a mutable object.
	KindMutableWrite
	// KindVerify grants integrity checking only, no content access.
	KindVerify
)

func (k Kind) String() string {
	switch k {
	case KindImmutableRead:
		return "immutable-read"
	case KindMutableRead:
		return "mutable-read"
	case KindMutableWrite:
		return "mutable-write"
	case KindVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Empty reports whether the capability slot is unset.
func (c Cap) Empty() bool { return c == "" }

func (c Cap) String() string { return string(c) }

// Kind parses the capability's URI prefix. Unrecognized prefixes, including
// the empty string, classify as KindUnknown.
func (c Cap) Kind() Kind {
	s := string(c)
	if !strings.HasPrefix(s, "URI:") {
		return KindUnknown
	}
	rest := s[len("URI:"):]
	idx := strings.Index(rest, ":")
	if idx < 0 {
		idx = len(rest)
	}
	switch prefix := rest[:idx]; {
	case strings.HasSuffix(prefix, "-Verifier"):
		return KindVerify
	case prefix == "CHK" || prefix == "LIT":
		return KindImmutableRead
	case strings.HasSuffix(prefix, "-RO"):
		switch strings.TrimSuffix(prefix, "-RO") {
		case "SSK", "MDMF", "DIR2", "DIR2-MDMF":
			return KindMutableRead
		}
		return KindUnknown
	case prefix == "SSK" || prefix == "MDMF" || prefix == "DIR2" || prefix == "DIR2-MDMF":
		return KindMutableWrite
	case prefix == "DIR2-CHK" || prefix == "DIR2-LIT":
		return KindImmutableRead
	default:
		return KindUnknown
	}
}

// IsDirectory reports whether the capability addresses a directory object.
// This is a hint derived from the URI prefix; the envelope tag remains the
// authority on object type.
func (c Cap) IsDirectory() bool {
	return strings.HasPrefix(string(c), "URI:DIR2")
}

// Set holds the capabilities known for a single grid object, one named slot
// per permission level. Any slot may be absent. A Set is a value: it is
// never mutated in place, only superseded by the set from a fresh
// resolution.
type Set struct {
	Read   Cap
	Write  Cap
	Verify Cap
}

// Writable reports whether the set carries a write capability.
func (s Set) Writable() bool { return !s.Write.Empty() }

// Readable reports whether the set carries a read capability. A write cap
// implies a usable read cap for the same object, so a set with only Write
// populated still reads.
func (s Set) Readable() bool { return !s.Read.Empty() || !s.Write.Empty() }

// Strongest returns the most powerful content capability in the set: the
// write cap when present, the read cap otherwise.
func (s Set) Strongest() Cap {
	if !s.Write.Empty() {
		return s.Write
	}
	return s.Read
}

// ReadCap returns the capability to use for read access, falling back to
// the write cap when no distinct read cap is known.
func (s Set) ReadCap() Cap {
	if !s.Read.Empty() {
		return s.Read
	}
	return s.Write
}
