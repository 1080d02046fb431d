package feeds

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// Shape identifies which structural layout a feed document matched.
type Shape string

const (
	ShapeNone   Shape = ""
	ShapeRSS    Shape = "rss2"   // channel/item
	ShapeRDF    Shape = "rdf"    // item directly under the root
	ShapeAtom   Shape = "atom"   // entry directly under the root
	ShapeNested Shape = "nested" // entry or item found anywhere, via namespace introspection
)

var errNoRootElement = errors.New("document has no root element")

// probeResult records which element placements were observed during a single token pass.
type probeResult struct {
	root        xml.Name
	defaultNS   bool
	atomPrefix  bool
	channelItem bool
	rootItem    bool
	rootEntry   bool
	anyEntry    bool
	anyItem     bool
}

// shape applies the fixed priority: RSS 2.0, then RDF, then Atom, then namespace introspection.
func (p probeResult) shape() Shape {
	switch {
	case p.channelItem:
		return ShapeRSS
	case p.rootItem:
		return ShapeRDF
	case p.rootEntry:
		return ShapeAtom
	case (p.defaultNS || p.atomPrefix) && (p.anyEntry || p.anyItem):
		return ShapeNested
	default:
		return ShapeNone
	}
}

// newDecoder returns a lenient decoder that understands HTML entities and declared charsets.
// HTML auto-closing stays off: RSS <link> carries text, not a void element.
func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel
	return d
}

// DetectShape scans doc once and reports its structural shape.
// It fails only when doc is not well enough formed to be read as XML.
func DetectShape(doc []byte) (Shape, error) {
	p, err := probe(doc)
	if err != nil {
		return ShapeNone, err
	}
	return p.shape(), nil
}

func probe(doc []byte) (probeResult, error) {
	var (
		res   probeResult
		path  []string
		found bool
	)

	d := newDecoder(bytes.NewReader(doc))
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return probeResult{}, fmt.Errorf("read xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth := len(path)
			name := t.Name.Local
			if depth == 0 {
				if found {
					// content after the root element; ignore the trailing garbage
					return res, nil
				}
				found = true
				res.root = t.Name
				for _, attr := range t.Attr {
					switch {
					case attr.Name.Space == "" && attr.Name.Local == "xmlns":
						res.defaultNS = true
					case attr.Name.Space == "xmlns" && attr.Name.Local == "atom":
						res.atomPrefix = true
					}
				}
			}
			switch name {
			case "item":
				res.anyItem = true
				if depth == 1 {
					res.rootItem = true
				}
				if depth == 2 && path[1] == "channel" {
					res.channelItem = true
				}
			case "entry":
				res.anyEntry = true
				if depth == 1 {
					res.rootEntry = true
				}
			}
			path = append(path, name)
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		}
	}

	if !found {
		return probeResult{}, errNoRootElement
	}
	return res, nil
}
