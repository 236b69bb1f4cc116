package basp

import (
	"encoding/binary"
	"fmt"
)

// HandshakeInfo is the `(node-id, application-ids, protocol-version)` triple
// exchanged by the server and client handshake operations, per spec §6.
type HandshakeInfo struct {
	NodeID          [16]byte
	ApplicationIDs  []string
	ProtocolVersion uint32
}

// EncodeHandshakePayload serializes h as the payload of an
// OpServerHandshake/OpClientHandshake frame: 16 raw node-id bytes, a
// varint-counted list of length-prefixed application ids, then a varint
// protocol version.
func EncodeHandshakePayload(h HandshakeInfo) []byte {
	buf := make([]byte, 0, 16+len(h.ApplicationIDs)*8+8)
	buf = append(buf, h.NodeID[:]...)

	countBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(countBuf, uint64(len(h.ApplicationIDs)))
	buf = append(buf, countBuf[:n]...)

	for _, id := range h.ApplicationIDs {
		lenBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutUvarint(lenBuf, uint64(len(id)))
		buf = append(buf, lenBuf[:n]...)
		buf = append(buf, id...)
	}

	verBuf := make([]byte, binary.MaxVarintLen64)
	n = binary.PutUvarint(verBuf, uint64(h.ProtocolVersion))
	buf = append(buf, verBuf[:n]...)

	return buf
}

// DecodeHandshakePayload parses the format EncodeHandshakePayload produces.
func DecodeHandshakePayload(b []byte) (HandshakeInfo, error) {
	if len(b) < 16 {
		return HandshakeInfo{}, NewError(CodeInvalidArgument,
			"handshake payload shorter than node-id")
	}

	var info HandshakeInfo
	copy(info.NodeID[:], b[:16])
	rest := b[16:]

	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return HandshakeInfo{}, NewError(CodeInvalidArgument,
			"handshake payload: malformed app-id count")
	}
	rest = rest[n:]

	info.ApplicationIDs = make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		l, n := binary.Uvarint(rest)
		if n <= 0 || uint64(len(rest)-n) < l {
			return HandshakeInfo{}, fmt.Errorf(
				"basp: handshake payload: truncated app-id %d", i)
		}
		rest = rest[n:]
		info.ApplicationIDs = append(info.ApplicationIDs, string(rest[:l]))
		rest = rest[l:]
	}

	version, n := binary.Uvarint(rest)
	if n <= 0 {
		return HandshakeInfo{}, NewError(CodeInvalidArgument,
			"handshake payload: malformed protocol version")
	}
	info.ProtocolVersion = uint32(version)

	return info, nil
}

// CompatibleAppIDs reports whether local and peer share at least one
// application id, the default handshake validation rule spec §6 describes
// as "Mismatched application-id sets ... terminate the connection."
func CompatibleAppIDs(local, peer HandshakeInfo) bool {
	set := make(map[string]struct{}, len(local.ApplicationIDs))
	for _, id := range local.ApplicationIDs {
		set[id] = struct{}{}
	}
	for _, id := range peer.ApplicationIDs {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
