package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

//SupportAudioExt checks if audio ext is supported
func SupportAudioExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".wav", ".mp3", ".mp4", ".m4a", ".ogg", ".webm", ".wma":
		return true
	}
	return false
}

// MakeValidateFileName drops directories from the name, replaces spaces and lowercases the extension.
// Result is prefixed with dir if provided
func MakeValidateFileName(dir, fileName string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(fileName, "\\", "/")))
	if base == "/" || base == "." || base == "" {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	ext := filepath.Ext(base)
	base = strings.ReplaceAll(strings.TrimSuffix(base, ext), " ", "_") + strings.ToLower(ext)
	if dir == "" {
		return base, nil
	}
	return dir + "/" + base, nil
}
