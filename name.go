package rofat

import (
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Checksum calculates the checksum of a short name as stored in every long name fragment.
// The first byte is the starting sum. For each following byte the sum is rotated
// right by one bit and the byte is added.
func Checksum(name [11]byte) byte {
	sum := name[0]
	for _, c := range name[1:] {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}

// shortName builds the 8.3 name of a short entry, e.g. "README.MD".
// The dot is only added if there is an extension.
func shortName(h EntryHeader) string {
	raw := h.Name
	if raw[0] == entryKanji {
		raw[0] = entryDeleted
	}

	base := trimSpaces(raw[:8])
	ext := trimSpaces(raw[8:11])

	if h.NTReserved&ntLowerBase != 0 {
		base = asciiLower(base)
	}
	if h.NTReserved&ntLowerExt != 0 {
		ext = asciiLower(ext)
	}

	name := decodeOEM(base)
	if len(ext) > 0 {
		name += "." + decodeOEM(ext)
	}
	return name
}

func trimSpaces(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return b[:end]
}

// asciiLower lowers only A-Z as the high half of the OEM code page is left alone by the NT flags.
func asciiLower(b []byte) []byte {
	lower := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return lower
}

// decodeOEM converts a short name from code page 437 to UTF-8.
func decodeOEM(b []byte) string {
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

// decodeUTF16 converts little endian UTF-16 code units to UTF-8.
// Invalid sequences end up as the replacement character, so it never fails on broken names.
func decodeUTF16(units []uint16) (string, error) {
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[i*2:], u)
	}

	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
