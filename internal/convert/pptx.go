package convert

import (
	"archive/zip"
	"context"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docparse/internal/document"
)

// PPTX flattens each slide's text shapes into its own page, in presentation order.
type PPTX struct {
	Layout document.Layout
}

func (c PPTX) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, eris.Wrap(err, "pptx")
	}

	slides, err := slideOrder(zr)
	if err != nil {
		return nil, eris.Wrap(err, "pptx")
	}
	if len(slides) == 0 {
		return nil, eris.New("pptx: presentation has no slides")
	}

	doc := document.New("pptx")
	for _, name := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := readPart(zr, name)
		if err != nil {
			return nil, eris.Wrap(err, "pptx")
		}
		paras, err := paragraphs(part)
		if err != nil {
			return nil, eris.Wrapf(err, "pptx: %s", name)
		}
		var lines []string
		for _, p := range paras {
			if strings.TrimSpace(p) == "" {
				continue
			}
			lines = append(lines, strings.Split(p, "\n")...)
		}
		doc.Add(document.NewTextPage(c.Layout, lines...))
	}
	return doc, nil
}

type pptxPresentation struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type pptxRelationships struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// slideOrder returns slide part names in presentation order. When the
// presentation part cannot resolve them, slides are ordered by number.
func slideOrder(zr *zip.Reader) ([]string, error) {
	if names := declaredSlides(zr); len(names) > 0 {
		return names, nil
	}

	type numbered struct {
		n    int
		name string
	}
	var found []numbered
	for _, f := range zr.File {
		m := slidePartRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, eris.Wrapf(err, "slide number in %s", f.Name)
		}
		found = append(found, numbered{n, f.Name})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

func declaredSlides(zr *zip.Reader) []string {
	presPart, err := readPart(zr, "ppt/presentation.xml")
	if err != nil {
		return nil
	}
	relsPart, err := readPart(zr, "ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil
	}

	var pres pptxPresentation
	if err := newDecoder(presPart).Decode(&pres); err != nil {
		return nil
	}
	var rels pptxRelationships
	if err := newDecoder(relsPart).Decode(&rels); err != nil {
		return nil
	}

	targets := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		targets[r.ID] = r.Target
	}

	var names []string
	for _, s := range pres.SlideIDs {
		target, ok := targets[s.RelID]
		if !ok {
			return nil
		}
		name := strings.TrimPrefix(target, "/")
		if !strings.HasPrefix(target, "/") {
			name = path.Join("ppt", target)
		}
		if !hasPart(zr, name) {
			return nil
		}
		names = append(names, name)
	}
	return names
}
