package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is an accepted upload container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// SupportedFormats lists the accepted containers in display order.
var SupportedFormats = []Format{FormatWAV, FormatMP3, FormatM4A, FormatFLAC, FormatOGG}

var extensionFormats = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".aac":  FormatM4A,
	".flac": FormatFLAC,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".opus": FormatOGG,
}

// FormatFromName maps a file name's extension to a Format.
func FormatFromName(name string) (Format, bool) {
	f, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

// DetectFormat identifies the container from its leading bytes, falling back
// to the file extension when the signature is not recognised.
func DetectFormat(name string, head []byte) (Format, error) {
	if f, ok := sniffFormat(head); ok {
		return f, nil
	}
	if f, ok := FormatFromName(name); ok {
		return f, nil
	}
	return "", ErrUnsupportedFormat
}

func sniffFormat(head []byte) (Format, bool) {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV, true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC, true
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG, true
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3, true
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG audio frame sync; ADTS AAC shares it but is routed through ffmpeg either way
		return FormatMP3, true
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return FormatM4A, true
	}
	return "", false
}
