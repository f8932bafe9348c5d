package content

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

const rootElement = "presentation"

var (
	errNoRoot    = errors.New("no root element")
	errWrongRoot = errors.New("root element is not <presentation>")
)

// inspect checks that body is a presentation document and returns its name.
// A preview body is a prefix of the document, so truncation after the root
// element is accepted; a full body must be well formed to the end.
func inspect(body []byte, complete bool) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = true

	var (
		sawRoot bool
		depth   int
		inName  bool
		title   strings.Builder
		gotName bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !complete && sawRoot {
				break
			}
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !sawRoot {
				if !strings.EqualFold(t.Name.Local, rootElement) {
					return "", errWrongRoot
				}
				sawRoot = true
				for _, a := range t.Attr {
					if a.Name.Local == "title" && a.Value != "" {
						title.WriteString(a.Value)
						gotName = true
					}
				}
			} else if depth == 1 && !gotName && t.Name.Local == "name" {
				inName = true
			}
			depth++
		case xml.EndElement:
			depth--
			if inName {
				inName = false
				gotName = true
			}
		case xml.CharData:
			if inName {
				title.Write(t)
			}
		}
	}

	if !sawRoot {
		return "", errNoRoot
	}
	return strings.TrimSpace(title.String()), nil
}
