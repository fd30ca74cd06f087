// Package formats holds the file format catalog and the conversion rule table.
package formats

import "strings"

// Category groups extensions that convert into each other.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryArchive  Category = "archive"
)

// Format describes one known file extension.
type Format struct {
	Ext      string   `json:"ext"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	MIME     string   `json:"mime"`
}

var catalog = []Format{
	{"jpg", "JPEG Image", CategoryImage, "image/jpeg"},
	{"jpeg", "JPEG Image", CategoryImage, "image/jpeg"},
	{"png", "PNG Image", CategoryImage, "image/png"},
	{"gif", "GIF Image", CategoryImage, "image/gif"},
	{"webp", "WebP Image", CategoryImage, "image/webp"},
	{"svg", "SVG Image", CategoryImage, "image/svg+xml"},
	{"bmp", "BMP Image", CategoryImage, "image/bmp"},
	{"ico", "ICO Image", CategoryImage, "image/x-icon"},
	{"tiff", "TIFF Image", CategoryImage, "image/tiff"},
	{"avif", "AVIF Image", CategoryImage, "image/avif"},
	{"heif", "HEIF Image", CategoryImage, "image/heif"},
	{"mp4", "MP4 Video", CategoryVideo, "video/mp4"},
	{"avi", "AVI Video", CategoryVideo, "video/x-msvideo"},
	{"mov", "QuickTime Video", CategoryVideo, "video/quicktime"},
	{"wmv", "Windows Media Video", CategoryVideo, "video/x-ms-wmv"},
	{"flv", "Flash Video", CategoryVideo, "video/x-flv"},
	{"webm", "WebM Video", CategoryVideo, "video/webm"},
	{"mkv", "Matroska Video", CategoryVideo, "video/x-matroska"},
	{"mp3", "MP3 Audio", CategoryAudio, "audio/mpeg"},
	{"wav", "WAV Audio", CategoryAudio, "audio/wav"},
	{"ogg", "OGG Audio", CategoryAudio, "audio/ogg"},
	{"flac", "FLAC Audio", CategoryAudio, "audio/flac"},
	{"aac", "AAC Audio", CategoryAudio, "audio/aac"},
	{"wma", "Windows Media Audio", CategoryAudio, "audio/x-ms-wma"},
	{"pdf", "PDF Document", CategoryDocument, "application/pdf"},
	{"doc", "Word Document", CategoryDocument, "application/msword"},
	{"docx", "Word Document", CategoryDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	{"xls", "Excel Spreadsheet", CategoryDocument, "application/vnd.ms-excel"},
	{"xlsx", "Excel Spreadsheet", CategoryDocument, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	{"ppt", "PowerPoint Presentation", CategoryDocument, "application/vnd.ms-powerpoint"},
	{"pptx", "PowerPoint Presentation", CategoryDocument, "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	{"txt", "Text File", CategoryDocument, "text/plain"},
	{"rtf", "Rich Text Format", CategoryDocument, "application/rtf"},
	{"odt", "OpenDocument Text", CategoryDocument, "application/vnd.oasis.opendocument.text"},
	{"zip", "ZIP Archive", CategoryArchive, "application/zip"},
	{"rar", "RAR Archive", CategoryArchive, "application/x-rar-compressed"},
	{"7z", "7-Zip Archive", CategoryArchive, "application/x-7z-compressed"},
	{"tar", "TAR Archive", CategoryArchive, "application/x-tar"},
	{"gz", "GZIP Archive", CategoryArchive, "application/gzip"},
}

var byExt = func() map[string]Format {
	m := make(map[string]Format, len(catalog))
	for _, f := range catalog {
		m[f.Ext] = f
	}
	return m
}()

// NormalizeExt lower-cases an extension and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Lookup returns the catalog entry for an extension.
func Lookup(ext string) (Format, bool) {
	f, ok := byExt[NormalizeExt(ext)]
	return f, ok
}

// All returns a copy of the catalog in display order.
func All() []Format {
	out := make([]Format, len(catalog))
	copy(out, catalog)
	return out
}

// ByCategory returns the catalog entries of one category.
func ByCategory(c Category) []Format {
	var out []Format
	for _, f := range catalog {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}

// ExtFromFilename returns the normalized extension of a filename, or "".
func ExtFromFilename(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return NormalizeExt(name[i+1:])
}
