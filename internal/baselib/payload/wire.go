package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/basprt/actorframe/internal/baselib/registry"
)

// Serialize encodes a Tuple as `(count:varint, id_1, len_1, bytes_1, ...,
// id_n, len_n, bytes_n)`, matching spec §6's "Serialized message body"
// framing: a varint-prefixed type-id list followed by each value dispatched
// through its meta-object's Encode hook. Each value is additionally
// length-prefixed so Deserialize never needs to guess where one encoded
// value ends and the next begins.
func (t *Tuple) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	count := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(count, uint64(t.Len()))
	buf.Write(count[:n])

	for i, id := range t.d.typeIDs {
		idBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutUvarint(idBuf, uint64(id))
		buf.Write(idBuf[:n])

		meta, err := t.d.reg.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("payload: serialize element %d: %w", i, err)
		}

		encoded, err := meta.Encode(t.d.values[i])
		if err != nil {
			return nil, fmt.Errorf("payload: encode element %d (%s): %w",
				i, meta.Name, err)
		}

		lenBuf := make([]byte, binary.MaxVarintLen64)
		n = binary.PutUvarint(lenBuf, uint64(len(encoded)))
		buf.Write(lenBuf[:n])
		buf.Write(encoded)
	}

	return buf.Bytes(), nil
}

// Deserialize parses the wire format Serialize produces, resolving each
// type-id against reg and dispatching to its Decode hook. It is the
// receiving side of spec §6's BASP message body and the subject of the
// §8 "BASP roundtrip" invariant: deserialize(serialize(P)) == P.
func Deserialize(reg *registry.Registry, b []byte) (*Tuple, error) {
	r := bytes.NewReader(b)

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("payload: read element count: %w", err)
	}

	typeIDs := make([]registry.TypeID, 0, count)
	values := make([]any, 0, count)

	for i := uint64(0); i < count; i++ {
		rawID, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("payload: read type-id %d: %w", i, err)
		}
		id := registry.TypeID(rawID)

		meta, err := reg.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("payload: element %d: %w", i, err)
		}

		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("payload: read length %d: %w", i, err)
		}

		elemBytes := make([]byte, length)
		if _, err := r.Read(elemBytes); err != nil {
			return nil, fmt.Errorf("payload: read bytes for element %d: %w", i, err)
		}

		value, err := meta.Decode(elemBytes)
		if err != nil {
			return nil, fmt.Errorf("payload: decode element %d (%s): %w",
				i, meta.Name, err)
		}

		typeIDs = append(typeIDs, id)
		values = append(values, value)
	}

	return &Tuple{d: &data{
		refCount: 1,
		reg:      reg,
		typeIDs:  typeIDs,
		values:   values,
	}}, nil
}
