// Package waveform crops diarization turns out of an audio track.
//
// WAV tracks, including everything the extractor produces, are decoded once
// with beep into an in-memory buffer (resampled when the file rate differs
// from the pipeline rate) and each crop is encoded straight from it. Other
// pass-through formats are cut with ffmpeg. Either way a crop yields a mono
// 16-bit WAV Clip that remote backends can upload and in-process backends can
// read back as float32 samples.
package waveform
