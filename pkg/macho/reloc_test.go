package macho

import (
	"encoding/binary"
	"testing"
)

func TestDecodeReloc(t *testing.T) {
	tests := []struct {
		name   string
		w0, w1 uint32
		order  binary.ByteOrder
		want   Reloc
	}{
		{
			name:  "little endian extern pcrel long",
			w0:    0x1234,
			w1:    0x0d000007, // type 0, extern, length 2, pcrel, symbol 7
			order: binary.LittleEndian,
			want:  Reloc{Addr: 0x1234, Symbolnum: 7, Pcrel: true, Len: 2, Extern: true},
		},
		{
			name:  "big endian ppc br24",
			w0:    0x20,
			w1:    0x000003d3, // symbol 3, pcrel, length 2, extern, type 3
			order: binary.BigEndian,
			want:  Reloc{Addr: 0x20, Symbolnum: 3, Pcrel: true, Len: 2, Extern: true, Type: PPC_RELOC_BR24},
		},
		{
			name:  "big endian local section",
			w0:    0x100,
			w1:    0x00000240, // section 2, length 2
			order: binary.BigEndian,
			want:  Reloc{Addr: 0x100, Symbolnum: 2, Len: 2},
		},
		{
			name:  "scattered lazy pointer",
			w0:    0xa3002900, // scattered, length 2, type 3, address 0x2900
			w1:    0x1f00,
			order: binary.LittleEndian,
			want:  Reloc{Scattered: true, Addr: 0x2900, Len: 2, Type: GENERIC_RELOC_PB_LA_PTR, Value: 0x1f00},
		},
		{
			name:  "scattered pcrel pair",
			w0:    0xc1000010,
			w1:    0x40,
			order: binary.BigEndian,
			want:  Reloc{Scattered: true, Pcrel: true, Type: PPC_RELOC_PAIR, Addr: 0x10, Value: 0x40},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeReloc(tt.w0, tt.w1, tt.order)
			if got != tt.want {
				t.Fatalf("DecodeReloc() = %+v, want %+v", got, tt.want)
			}
			w0, w1, err := got.Encode(tt.order)
			if err != nil {
				t.Fatal(err)
			}
			if w0 != tt.w0 || w1 != tt.w1 {
				t.Errorf("Encode() = %#x %#x, want %#x %#x", w0, w1, tt.w0, tt.w1)
			}
		})
	}
}

func TestEncodeRelocLimits(t *testing.T) {
	if _, _, err := (Reloc{Scattered: true, Addr: 0x1000000}).Encode(binary.LittleEndian); err == nil {
		t.Error("expected error for scattered address wider than 24 bits")
	}
	if _, _, err := (Reloc{Symbolnum: 0x1000000, Extern: true}).Encode(binary.BigEndian); err == nil {
		t.Error("expected error for symbol number wider than 24 bits")
	}
}

func TestReferenceAndHintLayout(t *testing.T) {
	r := Reference{Isym: 0x123456, Flags: REFERENCE_FLAG_PRIVATE_UNDEFINED_LAZY}
	if w := encodeReference(r, binary.LittleEndian); w != 0x05123456 {
		t.Errorf("little endian reference = %#x", w)
	}
	if w := encodeReference(r, binary.BigEndian); w != 0x12345605 {
		t.Errorf("big endian reference = %#x", w)
	}
	h := Hint{ISubImage: 2, IToc: 0x1234}
	if w := encodeHint(h, binary.LittleEndian); w != 0x123402 {
		t.Errorf("little endian hint = %#x", w)
	}
	if w := encodeHint(h, binary.BigEndian); w != 0x02001234 {
		t.Errorf("big endian hint = %#x", w)
	}
	for _, o := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if got := decodeReference(encodeReference(r, o), o); got != r {
			t.Errorf("%s reference round trip = %+v", o, got)
		}
		if got := decodeHint(encodeHint(h, o), o); got != h {
			t.Errorf("%s hint round trip = %+v", o, got)
		}
	}
}
