// Package report renders transcript segments as the Japanese markdown report
// and reads such reports back.
//
// Build is pure: the same segments, input name, and time always produce the
// same text. Segment text is NFC-normalized and collapsed to one paragraph
// line so that transcribed text cannot alter the document structure.
package report
