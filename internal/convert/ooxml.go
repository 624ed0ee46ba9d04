package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Office Open XML packages are zip archives of XML parts.

func openPackage(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "ooxml: open package")
	}
	return zr, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "ooxml: open %s", name)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		return b, eris.Wrapf(err, "ooxml: read %s", name)
	}
	return nil, eris.Errorf("ooxml: part %s not found", name)
}

func hasPart(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// newDecoder returns an XML decoder that accepts non-UTF-8 declared charsets.
func newDecoder(part []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(part))
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "ooxml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return dec
}

// paragraphs walks WordprocessingML or DrawingML and returns the text of each
// paragraph element (local name "p"). Text runs ("t") are concatenated, tabs
// become '\t' and breaks become '\n'.
func paragraphs(part []byte) ([]string, error) {
	dec := newDecoder(part)

	var (
		out    []string
		cur    strings.Builder
		depth  int // nesting of open <p> elements
		inText bool
		inTabs bool // tab stop definitions, not content
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ooxml: parse xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					cur.Reset()
				}
				depth++
			case "t":
				inText = depth > 0
			case "tabs":
				inTabs = true
			case "tab":
				if depth > 0 && !inTabs {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if depth > 0 {
					depth--
					if depth == 0 {
						out = append(out, cur.String())
					}
				}
			case "t":
				inText = false
			case "tabs":
				inTabs = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}
