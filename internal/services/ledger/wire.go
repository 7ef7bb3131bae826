package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"foundry/internal/services"
)

// Instruction discriminators understood by the collection program.
const (
	instructionWriteItems = 0x01
	instructionWithdraw   = 0x02
	instructionInitialize = 0x03
)

// writeItemsOverhead is the fixed instruction cost before any item bytes:
// discriminator, start index, and item count.
const writeItemsOverhead = 1 + 4 + 4

// Item is one collection entry as the program stores it: a display name and
// the metadata locator.
type Item struct {
	Name string
	URI  string
}

// WireSize returns the serialized size of one item.
func (i Item) WireSize() int {
	return 4 + len(i.Name) + 4 + len(i.URI)
}

// BatchWireSize returns the serialized instruction size for a batch of
// items.
func BatchWireSize(items []Item) int {
	size := writeItemsOverhead
	for _, item := range items {
		size += item.WireSize()
	}
	return size
}

// State is the decoded collection account: the items registered so far,
// keyed by their position. Positions are written independently, so the
// set can be sparse while lower indices are still outstanding.
type State struct {
	Items map[int]Item
}

// Has reports whether an item is registered at index.
func (s State) Has(index int) bool {
	_, ok := s.Items[index]
	return ok
}

// Len returns the number of registered items.
func (s State) Len() int { return len(s.Items) }

// Indices returns the registered positions in ascending order.
func (s State) Indices() []int {
	indices := make([]int, 0, len(s.Items))
	for index := range s.Items {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// encodeWriteItems serializes the write instruction: discriminator, the
// zero-based start index the items land at, and length-prefixed entries.
func encodeWriteItems(startIndex int, items []Item) []byte {
	var buf bytes.Buffer
	buf.WriteByte(instructionWriteItems)
	binary.Write(&buf, binary.LittleEndian, uint32(startIndex))
	binary.Write(&buf, binary.LittleEndian, uint32(len(items)))
	for _, item := range items {
		writeString(&buf, item.Name)
		writeString(&buf, item.URI)
	}
	return buf.Bytes()
}

func encodeWithdraw() []byte {
	return []byte{instructionWithdraw}
}

func encodeInitialize(capacity int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(instructionInitialize)
	binary.Write(&buf, binary.LittleEndian, uint32(capacity))
	return buf.Bytes()
}

// minEntrySize is the smallest possible serialized entry: a u32 position
// and two empty length-prefixed strings.
const minEntrySize = 4 + 4 + 4

// decodeState parses the collection account data: a u32 entry count
// followed by position-prefixed entries. The count comes off untrusted
// account data, so the allocation hint is capped by what the remaining
// bytes could actually hold.
func decodeState(data []byte) (State, error) {
	reader := bytes.NewReader(data)

	var count uint32
	if err := binary.Read(reader, binary.LittleEndian, &count); err != nil {
		return State{}, services.Wrap(services.ErrConsistency, "ledger", "decode", "read entry count", err)
	}

	hint := int(count)
	if max := reader.Len() / minEntrySize; hint > max {
		hint = max
	}
	state := State{Items: make(map[int]Item, hint)}
	for i := 0; i < int(count); i++ {
		var index uint32
		if err := binary.Read(reader, binary.LittleEndian, &index); err != nil {
			return State{}, services.Wrap(services.ErrConsistency, "ledger", "decode", fmt.Sprintf("read entry %d position", i), err)
		}
		name, err := readString(reader)
		if err != nil {
			return State{}, services.Wrap(services.ErrConsistency, "ledger", "decode", fmt.Sprintf("read entry %d name", i), err)
		}
		uri, err := readString(reader)
		if err != nil {
			return State{}, services.Wrap(services.ErrConsistency, "ledger", "decode", fmt.Sprintf("read entry %d uri", i), err)
		}
		state.Items[int(index)] = Item{Name: name, URI: uri}
	}
	return state, nil
}

func writeString(buf *bytes.Buffer, value string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	buf.WriteString(value)
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	if int(length) > reader.Len() {
		return "", fmt.Errorf("string length %d exceeds remaining data %d", length, reader.Len())
	}
	value := make([]byte, length)
	if _, err := reader.Read(value); err != nil {
		return "", err
	}
	return string(value), nil
}
