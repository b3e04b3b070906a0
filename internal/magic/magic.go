package magic

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

type Magic uint32

const (
	Magic32    Magic = 0xfeedface
	Magic64    Magic = 0xfeedfacf
	Magic32Rev Magic = 0xcefaedfe
	Magic64Rev Magic = 0xcffaedfe
	MagicFatBE Magic = 0xcafebabe
	MagicFatLE Magic = 0xbebafeca
)

func read(filePath string) (Magic, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err = io.ReadFull(f, magic[:]); err != nil {
		return 0, fmt.Errorf("failed to read magic: %w", err)
	}
	return Magic(binary.BigEndian.Uint32(magic[:])), nil
}

// IsMachO reports whether filePath is a thin Mach-O of either byte order or a universal file.
func IsMachO(filePath string) (bool, error) {
	m, err := read(filePath)
	if err != nil {
		return false, err
	}
	switch m {
	case Magic32, Magic64, Magic32Rev, Magic64Rev, MagicFatBE, MagicFatLE:
		return true, nil
	default:
		return false, fmt.Errorf("%s is not a macho file", filePath)
	}
}

// Is64Bit reports whether filePath is a thin 64-bit Mach-O, which can never be prebound.
func Is64Bit(filePath string) (bool, error) {
	m, err := read(filePath)
	if err != nil {
		return false, err
	}
	return m == Magic64 || m == Magic64Rev, nil
}
