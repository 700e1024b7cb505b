// Package transcribe declares the diarization and speech recognition
// contracts the pipeline drives. Implementations live under
// internal/services: the Python model host, a whisper.cpp server client, the
// OpenAI transcription API, and native whisper.cpp bindings.
package transcribe
