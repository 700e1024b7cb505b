// Package extract turns media inputs into audio tracks the models can read.
//
// Audio files are passed through untouched. Video containers are probed with
// ffprobe and their first audio stream is converted by ffmpeg into a mono
// 16-bit WAV at the pipeline sample rate, allocated in the run's temp set.
// A failed conversion removes its partial output before returning.
package extract
