package delivery

import (
	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/object"
)

// DefaultMaxPayloadSize is the ceiling on a serialized batch.
const DefaultMaxPayloadSize = 126 * 1024

// EncodeBatch returns the wire encoding of a batch: a JSON array of
// envelopes.
func EncodeBatch(envelopes []object.Object) ([]byte, error) {
	return object.Marshal(envelopes)
}

// DecodeBatch decodes a batch. A single JSON object is accepted as a batch of
// one.
func DecodeBatch(data []byte) ([]object.Object, error) {
	var raw []map[string]interface{}
	if err := object.UnmarshalInto(data, &raw); err != nil {
		single, err2 := object.Unmarshal(data)
		if err2 != nil {
			return nil, common.Errorf("Batch", common.InvalidMessageFormat, "", "%v", err)
		}
		return []object.Object{single}, nil
	}

	res := make([]object.Object, len(raw))
	for i, m := range raw {
		res[i] = object.Object(m)
	}
	return res, nil
}

// Split encodes envelopes into as few batches as possible, in order, each no
// larger than maxSize. A single envelope over the ceiling fails the whole
// split with InvalidInput.
func Split(envelopes []object.Object, maxSize int) ([][]byte, error) {
	var (
		batches [][]byte
		current []object.Object
		// encoded size of current: brackets plus separators plus items
		size = 2
	)

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		data, err := EncodeBatch(current)
		if err != nil {
			return err
		}
		batches = append(batches, data)
		current = nil
		size = 2
		return nil
	}

	for _, e := range envelopes {
		item, err := object.Marshal(e)
		if err != nil {
			return nil, err
		}

		if len(item)+2 > maxSize {
			return nil, common.Errorf("Envelope", common.InvalidInput, e.String(object.LinkField),
				"%d bytes exceed the %d bytes payload ceiling", len(item), maxSize)
		}

		added := len(item)
		if len(current) > 0 {
			added++
		}

		if size+added > maxSize {
			if err := flush(); err != nil {
				return nil, err
			}
			added = len(item)
		}

		current = append(current, e)
		size += added
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return batches, nil
}
