package formats

import "fmt"

// ValidationError is returned when a conversion pair is not allowed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Rejection messages.
const (
	MsgInvalidFormat      = "Invalid file format"
	MsgSameFormat         = "Source and target formats are the same"
	MsgArchiveUnsupported = "Archive format conversion is not supported"
)

const gif = "gif"

var textFamily = map[string]bool{"txt": true, "rtf": true, "odt": true}

var officeFamily = map[string]string{
	"doc":  "word",
	"docx": "word",
	"xls":  "spreadsheet",
	"xlsx": "spreadsheet",
	"ppt":  "presentation",
	"pptx": "presentation",
}

// Validate decides whether converting source to target is allowed.
// It returns nil or a *ValidationError with a user-facing message.
func Validate(source, target string) error {
	src, srcOK := Lookup(source)
	dst, dstOK := Lookup(target)
	if !srcOK || !dstOK {
		return &ValidationError{Message: MsgInvalidFormat}
	}

	if src.Ext == dst.Ext {
		return &ValidationError{Message: MsgSameFormat}
	}

	switch {
	case src.Category == CategoryImage && dst.Category == CategoryImage:
		return nil
	case src.Category == CategoryVideo && dst.Ext == gif:
		return nil
	case src.Ext == gif && dst.Category == CategoryVideo:
		return nil
	case src.Category == CategoryVideo && dst.Category == CategoryVideo:
		return nil
	case src.Category == CategoryAudio && dst.Category == CategoryAudio:
		return nil
	case src.Category == CategoryDocument && dst.Category == CategoryDocument:
		if documentPairAllowed(src.Ext, dst.Ext) {
			return nil
		}
	case src.Category == CategoryArchive && dst.Category == CategoryArchive:
		return &ValidationError{Message: MsgArchiveUnsupported}
	}

	msg := fmt.Sprintf("Cannot convert %s files to %s format.", src.Category, dst.Category)
	if hint := conversionHint(src, dst); hint != "" {
		msg += " " + hint
	}
	return &ValidationError{Message: msg}
}

func documentPairAllowed(src, dst string) bool {
	if src == "pdf" || dst == "pdf" {
		return true
	}
	if textFamily[src] && textFamily[dst] {
		return true
	}
	family, ok := officeFamily[src]
	return ok && family == officeFamily[dst]
}

func conversionHint(src, dst Format) string {
	switch {
	case src.Category == CategoryVideo && dst.Category == CategoryImage:
		return "Note: Video to GIF conversion is supported."
	case src.Category == CategoryImage && dst.Category == CategoryVideo:
		return "Note: GIF to video conversion is supported."
	}
	return ""
}

// SupportedTargets lists every extension source may be converted to,
// in catalog order. Unknown sources have no targets.
func SupportedTargets(source string) []string {
	if _, ok := Lookup(source); !ok {
		return []string{}
	}

	targets := make([]string, 0, len(catalog))
	for _, f := range catalog {
		if Validate(source, f.Ext) == nil {
			targets = append(targets, f.Ext)
		}
	}
	return targets
}
