package script

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const scriptTemplate = "sbatch.sh.tmpl"

var scriptTmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"shquote": ShellQuote,
	"shword":  shellWord,
}).ParseFS(templatesFS, "templates/*.tmpl"))

// safeWord matches strings that need no quoting in bash.
var safeWord = regexp.MustCompile(`^[A-Za-z0-9_./:,+@%=-]+$`)

// Render writes the script text for doc to w.
func Render(doc Document, w io.Writer) error {
	if err := scriptTmpl.ExecuteTemplate(w, scriptTemplate, doc); err != nil {
		return fmt.Errorf("render script: %w", err)
	}
	return nil
}

// String renders doc into memory.
func (d Document) String() string {
	var buf bytes.Buffer
	if err := Render(d, &buf); err != nil {
		return ""
	}
	return buf.String()
}

// WriteFile renders doc to path, creating parent directories. The file is
// made executable so it can also be run directly for debugging.
func WriteFile(doc Document, path string) error {
	var buf bytes.Buffer
	if err := Render(doc, &buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create script directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

// ShellQuote wraps s in single quotes, escaping embedded quotes as '\''.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellWord(s string) string {
	if safeWord.MatchString(s) {
		return s
	}
	return ShellQuote(s)
}
