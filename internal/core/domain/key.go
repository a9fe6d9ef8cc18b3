package domain

import (
	"path"
	"strings"
	"unicode"
)

// Google Workspace MIME types and the Office formats they export to.
const (
	MimeTypeGoogleDoc    = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypeGoogleSlides = "application/vnd.google-apps.presentation"
	MimeTypeFolder       = "application/vnd.google-apps.folder"

	MimeTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeTypeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeTypePptx = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// exportExtensions maps Workspace MIME types to the extension their
// exported Office representation carries.
var exportExtensions = map[string]string{
	MimeTypeGoogleDoc:    ".docx",
	MimeTypeGoogleSheet:  ".xlsx",
	MimeTypeGoogleSlides: ".pptx",
}

// ExportMimeType returns the Office MIME type a Workspace document is
// exported as, or the original MIME type for regular files.
func ExportMimeType(mimeType string) string {
	switch mimeType {
	case MimeTypeGoogleDoc:
		return MimeTypeDocx
	case MimeTypeGoogleSheet:
		return MimeTypeXlsx
	case MimeTypeGoogleSlides:
		return MimeTypePptx
	default:
		return mimeType
	}
}

// IsWorkspaceFile reports whether the MIME type is a provider-native
// document that must be exported rather than downloaded.
func IsWorkspaceFile(mimeType string) bool {
	return strings.HasPrefix(mimeType, "application/vnd.google-apps")
}

// DestinationKey derives the object-storage key for a file
// deterministically from its identifier and name: the same file always
// maps to the same key, which is what makes redundant re-uploads after
// a crash safe. The layout is <prefix>/<fileID>/<sanitised-name>.
func DestinationKey(prefix string, file RemoteFile) string {
	name := file.Name
	if ext, ok := exportExtensions[file.MimeType]; ok && !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return path.Join(prefix, file.ID, SanitizeObjectName(name))
}

// SanitizeObjectName produces an ASCII-safe object name: non-ASCII runes
// are dropped, reserved characters collapse to underscores, and runs of
// underscores collapse to one.
func SanitizeObjectName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r > unicode.MaxASCII:
			// dropped
		case r == '.' || r == '-':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := b.String()
	for strings.Contains(cleaned, "__") {
		cleaned = strings.ReplaceAll(cleaned, "__", "_")
	}
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "unnamed_file"
	}
	return cleaned
}
