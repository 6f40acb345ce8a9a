package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is how an input has to be prepared before it can be imposed.
type Kind int

const (
	Unsupported Kind = iota
	PDF
	// Native formats are opened by MuPDF directly.
	Native
	// Convertible formats go through LibreOffice first.
	Convertible
)

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case Native:
		return "native"
	case Convertible:
		return "convertible"
	default:
		return "unsupported"
	}
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Supported reports whether the file can be processed at all.
func (i *FileTypeInfo) Supported() bool { return i.Kind != Unsupported }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// zipOverrides maps extensions of ZIP-packaged formats mimetype may report as plain ZIP.
var zipOverrides = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".epub": "application/epub+zip",
	".cbz":  "application/vnd.comicbook+zip",
	".xps":  "application/oxps",
}

// oleOverrides maps legacy Office extensions stored as OLE compound files.
var oleOverrides = map[string]string{
	".doc": "application/msword",
	".xls": "application/vnd.ms-excel",
	".ppt": "application/vnd.ms-powerpoint",
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	mimeType := mtype.String()
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(filePath))

	log.Debug().Str("mime", mimeType).Str("ext", extension).Str("file", filePath).Msg("detected file type")

	switch {
	case mtype.Is("application/zip"):
		if m, ok := zipOverrides[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding ZIP detection based on extension")
			mimeType, extension = m, ext
		}
	case mtype.Is("application/x-ole-storage"):
		if m, ok := oleOverrides[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", m).Msg("overriding OLE detection based on extension")
			mimeType, extension = m, ext
		}
	}

	info := &FileTypeInfo{
		MIMEType:  mimeType,
		Extension: extension,
	}
	d.classify(info)
	return info, nil
}

// classify decides how the input is opened.
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case mimeType == "application/pdf":
		info.Kind = PDF
		info.Description = "PDF document"

	case mimeType == "application/epub+zip":
		info.Kind = Native
		info.Description = "EPUB book"

	case mimeType == "application/oxps", mimeType == "application/vnd.ms-xpsdocument":
		info.Kind = Native
		info.Description = "XPS document"

	case mimeType == "application/vnd.comicbook+zip":
		info.Kind = Native
		info.Description = "Comic book archive"

	case mimeType == "application/x-fictionbook+xml":
		info.Kind = Native
		info.Description = "FictionBook"

	case mimeType == "image/svg+xml":
		info.Kind = Native
		info.Description = "SVG image"

	case strings.HasPrefix(mimeType, "image/"):
		info.Kind = Native
		info.Description = "Image file"

	case mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mimeType == "application/msword":
		info.Kind = Convertible
		info.Description = "Microsoft Word document"

	case mimeType == "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		mimeType == "application/vnd.ms-powerpoint":
		info.Kind = Convertible
		info.Description = "Microsoft PowerPoint presentation"

	case mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mimeType == "application/vnd.ms-excel":
		info.Kind = Convertible
		info.Description = "Microsoft Excel spreadsheet"

	case strings.HasPrefix(mimeType, "application/vnd.oasis.opendocument."):
		info.Kind = Convertible
		info.Description = "OpenDocument file"

	case mimeType == "application/rtf", mimeType == "text/rtf":
		info.Kind = Convertible
		info.Description = "Rich Text Format"

	case mimeType == "text/plain", mimeType == "text/html":
		info.Kind = Convertible
		info.Description = "Text document"

	default:
		info.Kind = Unsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// RequiresConversion checks if a file needs LibreOffice conversion to PDF
func (d *Detector) RequiresConversion(filePath string) (bool, error) {
	info, err := d.Detect(filePath)
	if err != nil {
		return false, err
	}
	return info.Kind == Convertible, nil
}
