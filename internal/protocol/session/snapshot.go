package session

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/danmuck/parkd/internal/protocol/frame"
	"github.com/danmuck/parkd/internal/protocol/schema"
	"github.com/fxamacker/cbor/v2"
)

// LotInfo is one lot as a client first sees it.
type LotInfo struct {
	TotalSpaces    uint32 `cbor:"total_spaces"`
	OccupiedSpaces uint32 `cbor:"occupied_spaces"`
	PricePerHour   int64  `cbor:"price_per_hour"`
}

func (l LotInfo) Available() uint32 {
	if l.OccupiedSpaces > l.TotalSpaces {
		return 0
	}
	return l.TotalSpaces - l.OccupiedSpaces
}

// LotSnapshot maps lot id to lot state.
type LotSnapshot map[uint32]LotInfo

// IDs returns the lot ids in ascending order.
func (s LotSnapshot) IDs() []uint32 {
	ids := make([]uint32, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var snapshotEnc = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodeSnapshot builds the unsolicited snapshot frame written on accept.
func EncodeSnapshot(seq uint32, snap LotSnapshot) (frame.Frame, error) {
	payload, err := snapshotEnc.Marshal(snap)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("session: encode snapshot: %w", err)
	}
	return frame.Frame{
		Header: frame.Header{
			Kind:  schema.KindLotSnapshot,
			Seq:   seq,
			Flags: frame.FlagReply,
		},
		Payload: payload,
	}, nil
}

func DecodeSnapshot(f frame.Frame) (LotSnapshot, error) {
	if f.Header.Kind != schema.KindLotSnapshot {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedKind, schema.KindName(f.Header.Kind))
	}
	var snap LotSnapshot
	if err := cbor.Unmarshal(f.Payload, &snap); err != nil {
		return nil, fmt.Errorf("session: decode snapshot: %w", err)
	}
	if snap == nil {
		snap = LotSnapshot{}
	}
	return snap, nil
}

// DiscoveryInfo is the discovery datagram payload.
type DiscoveryInfo struct {
	Address string `cbor:"address"`
	Port    uint16 `cbor:"port"`
}

// Addr returns host:port for dialing.
func (d DiscoveryInfo) Addr() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(int(d.Port)))
}

func EncodeDiscoveryInfo(d DiscoveryInfo) ([]byte, error) {
	raw, err := snapshotEnc.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("session: encode discovery info: %w", err)
	}
	return raw, nil
}

func DecodeDiscoveryInfo(raw []byte) (DiscoveryInfo, error) {
	var d DiscoveryInfo
	if err := cbor.Unmarshal(raw, &d); err != nil {
		return DiscoveryInfo{}, fmt.Errorf("session: decode discovery info: %w", err)
	}
	if d.Address == "" || d.Port == 0 {
		return DiscoveryInfo{}, fmt.Errorf("session: discovery info missing address or port")
	}
	return d, nil
}
