package elektroid

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// Path and string fields embedded in message payloads travel the wire in
// the device's legacy single-byte encoding (CP1252), not UTF-8. Every
// transcoding failure is reported as ErrInvalidArg, matching the original
// g_convert() failure path in connector_get_utf8/connector_get_cp1252.

func toCP1252(s string) ([]byte, error) {
	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not representable in CP1252: %v", ErrInvalidArg, s, err)
	}
	return append(encoded, 0), nil
}

func fromCP1252(b []byte) (string, error) {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: invalid CP1252 bytes: %v", ErrInvalidArg, err)
	}
	return string(decoded), nil
}

// cp1252CString reads a NUL-terminated CP1252 string starting at data[pos]
// and returns the decoded string plus the index just past the NUL.
func cp1252CString(data []byte, pos int) (string, int, error) {
	end := pos
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end >= len(data) {
		return "", end, fmt.Errorf("%w: unterminated string in message", ErrProtocol)
	}
	s, err := fromCP1252(data[pos:end])
	if err != nil {
		return "", end + 1, err
	}
	return s, end + 1, nil
}
