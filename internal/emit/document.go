// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cleveryg/lens/internal/derrors"
	"github.com/google/safehtml/template"
	"github.com/google/safehtml/template/uncheckedconversions"
	"github.com/jba/templatecheck"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocumentData is the data the document template is executed with.
type DocumentData struct {
	Title       string
	Development bool
}

// loadTemplate parses and checks the document template at path.
func loadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no template configured", derrors.MissingTemplate)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", derrors.MissingTemplate, path)
		}
		return nil, err
	}
	// The template path comes from the build configuration, which is as
	// trusted as the sources being built.
	src := uncheckedconversions.TrustedSourceFromStringKnownToSatisfyTypeContract(path)
	t, err := template.New(documentBase(path)).ParseFilesFromTrustedSources(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", derrors.InvalidArgument, path, err)
	}
	if err := templatecheck.CheckSafe(t, DocumentData{}); err != nil {
		return nil, fmt.Errorf("%w: checking %s: %v", derrors.InvalidArgument, path, err)
	}
	return t, nil
}

func documentBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == os.PathSeparator {
			return path[i+1:]
		}
	}
	return path
}

// A document collects the tags injected into the rendered template.
type document struct {
	styles  []string
	scripts []string
}

// render executes t and adds a stylesheet link for each style at the end
// of the head and a script element for each script at the end of the
// body, in order.
func (d *document) render(t *template.Template, data DocumentData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing template: %v", err)
	}
	root, err := html.Parse(&buf)
	if err != nil {
		return nil, err
	}
	head := find(root, atom.Head)
	body := find(root, atom.Body)
	if head == nil || body == nil {
		return nil, errors.New("document has no head or body")
	}
	for _, href := range d.styles {
		head.AppendChild(element(atom.Link, html.Attribute{Key: "rel", Val: "stylesheet"}, html.Attribute{Key: "href", Val: href}))
		head.AppendChild(&html.Node{Type: html.TextNode, Data: "\n"})
	}
	for _, src := range d.scripts {
		body.AppendChild(element(atom.Script, html.Attribute{Key: "src", Val: src}))
		body.AppendChild(&html.Node{Type: html.TextNode, Data: "\n"})
	}
	var out bytes.Buffer
	if err := html.Render(&out, root); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}
