// Package checksum implements the drift-detection strategies a file
// resource can select.
//
// Every strategy produces a fingerprint string of the form "{type}value":
//
//	{sha256}2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae
//	{md5lite}5d41402abc4b2a76b9719d911017c592
//	{mtime}2026-10-19T10:00:00.000000001Z
//	{none}
//
// Content strategies hash bytes; the "lite" variants hash only the first
// 512 bytes. Time strategies fingerprint a filesystem timestamp, so touching
// a source forces redelivery even when its bytes are unchanged. The none
// strategy performs no comparison at all.
//
// All comparison functions are pure: they take fingerprints and return a
// verdict, without touching the filesystem.
package checksum
