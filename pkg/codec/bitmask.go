package codec

import (
	"fmt"
	"math/bits"

	"xwire/pkg/wire"
)

// MaskSlot is one optional value slot of a bitmask-gated field set.
// Slots may have heterogeneous types and widths.
type MaskSlot struct {
	// Bit is the mask bit index gating this slot.
	Bit uint
	// Name keys the slot's value in encode/decode maps.
	Name string
	// Codec encodes and decodes the slot's value.
	Codec Codec
	// Default is the in-memory value of an absent slot. Absent slots
	// have no wire representation.
	Default any
}

// OptionalSet encodes and decodes a fixed-width bitmask followed by
// the values of the slots whose bits are set, in ascending bit order.
type OptionalSet struct {
	// MaskBits is the mask width: 8, 16 or 32.
	MaskBits int
	// PadAfterMask is the count of unused bytes between the mask and
	// the first present slot (some messages align a 16-bit mask to a
	// 4-byte boundary this way).
	PadAfterMask int
	// Slots in ascending Bit order.
	Slots []MaskSlot
}

// NewOptionalSet validates slot ordering and bit ranges.
func NewOptionalSet(maskBits int, slots []MaskSlot) (*OptionalSet, error) {
	switch maskBits {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("mask width %d bits, want 8, 16 or 32", maskBits)
	}
	for i, s := range slots {
		if s.Bit >= uint(maskBits) {
			return nil, fmt.Errorf("slot %q: bit %d exceeds %d-bit mask", s.Name, s.Bit, maskBits)
		}
		if i > 0 && slots[i-1].Bit >= s.Bit {
			return nil, fmt.Errorf("slot %q: bits not in ascending order", s.Name)
		}
	}
	return &OptionalSet{MaskBits: maskBits, Slots: slots}, nil
}

// Mask computes the bitmask for the slots present in values.
func (s *OptionalSet) Mask(values map[string]any) uint64 {
	var mask uint64
	for _, slot := range s.Slots {
		if _, ok := values[slot.Name]; ok {
			mask |= 1 << slot.Bit
		}
	}
	return mask
}

// Encode writes the mask, then each present slot's value in ascending
// bit order. A slot is present iff its name is a key of values.
func (s *OptionalSet) Encode(w *wire.Writer, cx *Context, values map[string]any) error {
	mask := s.Mask(values)
	s.writeMask(w, mask)
	w.WriteZeros(s.PadAfterMask)
	for _, slot := range s.Slots {
		v, ok := values[slot.Name]
		if !ok {
			continue
		}
		if err := slot.Codec.Encode(w, cx, v); err != nil {
			return fmt.Errorf("slot %s: %w", slot.Name, err)
		}
	}
	return nil
}

// Decode reads the mask, then each gated slot in ascending bit order.
// Absent slots take their documented defaults and consume no bytes.
// The returned map always has one entry per slot, so the decoded
// present-count plus defaults equals the slot count; present slots
// alone equal the mask's popcount.
func (s *OptionalSet) Decode(r *wire.Reader, cx *Context) (map[string]any, error) {
	mask, err := s.readMask(r)
	if err != nil {
		return nil, err
	}
	if err := r.SkipPadding(s.PadAfterMask); err != nil {
		return nil, err
	}

	defined := uint64(0)
	for _, slot := range s.Slots {
		defined |= 1 << slot.Bit
	}
	if extra := mask &^ defined; extra != 0 && r.Policy() == wire.Strict {
		return nil, &wire.InvalidMaskError{Bit: uint(bits.TrailingZeros64(extra)), Mask: mask}
	}

	// One decode per set bit keeps the present-count equal to the
	// popcount of the defined mask bits.
	values := make(map[string]any, len(s.Slots))
	for _, slot := range s.Slots {
		if mask&(1<<slot.Bit) == 0 {
			values[slot.Name] = slot.Default
			continue
		}
		v, err := slot.Codec.Decode(r, cx)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.Name, err)
		}
		values[slot.Name] = v
	}
	return values, nil
}

func (s *OptionalSet) writeMask(w *wire.Writer, mask uint64) {
	switch s.MaskBits {
	case 8:
		w.WriteUint8(uint8(mask))
	case 16:
		w.WriteUint16(uint16(mask))
	case 32:
		w.WriteUint32(uint32(mask))
	}
}

func (s *OptionalSet) readMask(r *wire.Reader) (uint64, error) {
	switch s.MaskBits {
	case 8:
		v, err := r.ReadUint8()
		return uint64(v), err
	case 16:
		v, err := r.ReadUint16()
		return uint64(v), err
	case 32:
		v, err := r.ReadUint32()
		return uint64(v), err
	}
	return 0, fmt.Errorf("mask width %d bits", s.MaskBits)
}
