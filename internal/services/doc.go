// Package services defines shared utilities consumed by the pipeline stages
// and the external model and tool integrations beneath it.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that let front ends
//     distinguish bad input from tool or model failures.
//
// Subpackages wrap individual collaborators (the Python model host, whisper
// servers, OpenAI, whisper.cpp, the LLM used for minutes drafting).
package services
