package storage

import (
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// UploadLayout decides where uploaded extracts are staged inside a FileStorage.
// Each upload gets its own name so two uploads of "tb.csv" never collide.
type UploadLayout struct {
	root string
	ids  func() string
}

// NewUploadLayout stages uploads under root, e.g. "uploads/ENT01/2024-03/<id>_tb.csv"
func NewUploadLayout(root string) *UploadLayout {
	if root == "" {
		root = "uploads"
	}
	return &UploadLayout{root: root, ids: uuid.NewString}
}

// PathFor returns the relative staging path of an upload
func (l *UploadLayout) PathFor(entityCode, period, filename string) string {
	name := SanitizeName(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if strings.Trim(name, ".") == "" {
		name = "extract"
	}
	return path.Join(l.root, SanitizeName(entityCode), SanitizeName(period), l.ids()+"_"+name)
}

// SanitizeName returns a filesystem-safe version of name.
// Separators and parent references are removed so a name cannot leave its folder.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	return unsafeNameChars.ReplaceAllString(name, "")
}
