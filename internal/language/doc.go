// Package language maps the configured transcription language to the ISO
// 639-1 codes the speech recognition backends expect, and compares it with
// container stream tags.
package language
