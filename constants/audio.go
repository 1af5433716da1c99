package constants

import "strings"

// AllowedExtensions holds the file extensions accepted for document uploads.
// Voice and audio messages are always accepted; documents must look like audio.
var AllowedExtensions = map[string]struct{}{
	"mp3":  {},
	"m4a":  {},
	"wav":  {},
	"ogg":  {},
	"oga":  {},
	"opus": {},
	"flac": {},
	"aac":  {},
	"wma":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAudioMIME reports whether a MIME type declares an audio payload.
func IsAudioMIME(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "audio/")
}

// IsAllowedDocument accepts a document upload when either its MIME type is
// audio or its extension is in the allowlist.
func IsAllowedDocument(filename, mime string) bool {
	if mime != "" && IsAudioMIME(mime) {
		return true
	}
	if i := strings.LastIndex(filename, "."); i >= 0 {
		_, ok := AllowedExtensions[NormalizeExt(filename[i:])]
		return ok
	}
	return false
}
