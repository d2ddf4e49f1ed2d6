package urls

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrUnsupportedFile is returned by ReadFile for extensions other than
// .txt and .docx.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ReadFile returns the text of a .txt or .docx file. Text files that are
// not valid UTF-8 are decoded as Latin-1.
func ReadFile(name string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt":
		return readText(name)
	case ".docx":
		return readDocx(name)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
}

func readText(name string) (string, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", filepath.Base(name), err)
	}
	return string(text), nil
}

// readDocx returns the non-empty paragraphs of word/document.xml, one per
// line.
func readDocx(name string) (string, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	f, err := zr.Open("word/document.xml")
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer f.Close()

	paragraphs, err := docxParagraphs(f)
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs walks WordprocessingML, collecting w:t runs per w:p.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := cur.String(); strings.TrimSpace(p) != "" {
					out = append(out, p)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
}
