package wapi

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sly67/tahoegrid/pkg/capability"
)

// Envelope kinds as tagged on the wire.
const (
	KindDirnode  = "dirnode"
	KindFilenode = "filenode"
	KindUnknown  = "unknown"
)

// Envelope is the raw JSON structure the grid returns for a capability:
// a two-element array of a tag string and a details object, for example
//
//	["dirnode", {"mutable": true, "ro_uri": "URI:DIR2-RO:...", "children": {...}}]
//
// A directory envelope embeds one level of child envelopes in its children
// map, so resolving a directory's immediate children needs no further
// round trips.
type Envelope struct {
	Kind    string
	Details Details
}

// Details carries the per-object fields of an envelope. Absent capability
// fields decode to empty strings.
type Details struct {
	Mutable   bool                `json:"mutable"`
	ReadCap   capability.Cap      `json:"ro_uri"`
	WriteCap  capability.Cap      `json:"rw_uri"`
	VerifyCap capability.Cap      `json:"verify_uri"`
	Size      int64               `json:"size"`
	Metadata  *Metadata           `json:"metadata,omitempty"`
	Children  map[string]Envelope `json:"children,omitempty"`
}

// Metadata mirrors the optional metadata block on file envelopes.
type Metadata struct {
	Tahoe *LinkTimes `json:"tahoe,omitempty"`
}

// LinkTimes holds link creation/modification times as Unix seconds with a
// fractional part.
type LinkTimes struct {
	LinkCrTime float64 `json:"linkcrtime"`
	LinkMoTime float64 `json:"linkmotime"`
}

// Caps assembles the capability set carried by the envelope.
func (e Envelope) Caps() capability.Set {
	return capability.Set{
		Read:   e.Details.ReadCap,
		Write:  e.Details.WriteCap,
		Verify: e.Details.VerifyCap,
	}
}

// CreationTime returns the link creation time, or the zero time when the
// envelope carries no metadata.
func (e Envelope) CreationTime() time.Time {
	if e.Details.Metadata == nil || e.Details.Metadata.Tahoe == nil {
		return time.Time{}
	}
	return unixFloat(e.Details.Metadata.Tahoe.LinkCrTime)
}

// ModificationTime returns the link modification time, or the zero time
// when the envelope carries no metadata.
func (e Envelope) ModificationTime() time.Time {
	if e.Details.Metadata == nil || e.Details.Metadata.Tahoe == nil {
		return time.Time{}
	}
	return unixFloat(e.Details.Metadata.Tahoe.LinkMoTime)
}

func unixFloat(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// UnmarshalJSON decodes the two-element array wire form. ProtocolError is
// left to the caller; this reports plain decoding errors.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) < 1 {
		return errEmptyEnvelope
	}
	if err := json.Unmarshal(parts[0], &e.Kind); err != nil {
		return err
	}
	e.Details = Details{}
	if len(parts) > 1 {
		if err := json.Unmarshal(parts[1], &e.Details); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON re-encodes the envelope in its wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Kind, e.Details})
}

var errEmptyEnvelope = jsonError("empty envelope array")

type jsonError string

func (e jsonError) Error() string { return string(e) }
