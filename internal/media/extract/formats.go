package extract

import (
	"path/filepath"
	"strings"
)

// VideoExtensions are container formats whose audio must be extracted.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// AudioExtensions are formats handed to the models as-is.
var AudioExtensions = []string{".wav", ".mp3", ".m4a", ".flac"}

// SupportedExtensions lists every accepted extension in display order.
func SupportedExtensions() []string {
	out := make([]string, 0, len(VideoExtensions)+len(AudioExtensions))
	out = append(out, VideoExtensions...)
	return append(out, AudioExtensions...)
}

// SupportedList renders the accepted extensions for user-facing messages.
func SupportedList() string {
	return strings.Join(SupportedExtensions(), ", ")
}

// Ext returns the lowercased extension of path.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsVideo reports whether path has a video container extension.
func IsVideo(path string) bool {
	return contains(VideoExtensions, Ext(path))
}

// IsAudio reports whether path has a directly supported audio extension.
func IsAudio(path string) bool {
	return contains(AudioExtensions, Ext(path))
}

// IsSupported reports whether path has any accepted extension.
func IsSupported(path string) bool {
	return IsVideo(path) || IsAudio(path)
}

func contains(list []string, ext string) bool {
	if ext == "" {
		return false
	}
	for _, candidate := range list {
		if candidate == ext {
			return true
		}
	}
	return false
}
