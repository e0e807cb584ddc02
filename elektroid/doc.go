// Package elektroid implements the host side of a vendor SysEx transfer
// protocol for Elektron (and Elektron-alike) hardware instruments connected
// over MIDI: framed request/response messaging, the 7-bit payload codec,
// the chunked sample/data/OS-upgrade transfer protocols, a filesystem-ops
// dispatch table, and a second, counter-tagged protocol style exemplified
// by the Arturia MicroBrute connector.
package elektroid
