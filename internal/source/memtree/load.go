package memtree

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jward/xref/internal/source"
)

// document is the on-disk tree description. JSON documents parse too since
// JSON is a YAML subset.
type document struct {
	File  string     `yaml:"file"`
	Nodes []nodeSpec `yaml:"nodes"`
}

type typeSpec struct {
	Kind      string `yaml:"kind"`
	Spelling  string `yaml:"spelling"`
	Canonical string `yaml:"canonical"`
}

type paramSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type nodeSpec struct {
	ID         string      `yaml:"id"`
	Kind       string      `yaml:"kind"`
	Name       string      `yaml:"name"`
	Display    string      `yaml:"display"`
	File       string      `yaml:"file"`
	Line       int         `yaml:"line"`
	Col        int         `yaml:"col"`
	Type       *typeSpec   `yaml:"type"`
	Result     string      `yaml:"result"`
	Params     []paramSpec `yaml:"params"`
	Ref        string      `yaml:"ref"`
	Definition string      `yaml:"definition"`
	Parent     string      `yaml:"parent"`
	Template   string      `yaml:"template"`
	Virtual    bool        `yaml:"virtual"`
	Dynamic    bool        `yaml:"dynamic"`
	Children   []nodeSpec  `yaml:"children"`
}

// Load decodes a tree description. defaultPath is used when the document
// does not name its file.
func Load(r io.Reader, defaultPath string) (*Tree, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("memtree: empty document")
		}
		return nil, fmt.Errorf("memtree: decode: %w", err)
	}
	path := doc.File
	if path == "" {
		path = defaultPath
	}

	t := New(path)
	ids := make(map[string]*Node)
	type link struct {
		node *Node
		spec *nodeSpec
	}
	var links []link

	var build func(parent *Node, specs []nodeSpec) error
	build = func(parent *Node, specs []nodeSpec) error {
		for i := range specs {
			spec := &specs[i]
			kind := source.ParseKind(spec.Kind)
			n := parent.Add(kind, spec.Name)
			if spec.Line > 0 {
				n.At(spec.Line, spec.Col)
			}
			if spec.File != "" {
				n.InFile(spec.File)
			}
			if spec.Display != "" {
				n.Display(spec.Display)
			}
			if spec.Type != nil {
				n.typ = source.Type{
					Kind:      source.ParseTypeKind(spec.Type.Kind),
					Spelling:  spec.Type.Spelling,
					Canonical: spec.Type.Canonical,
				}
				if n.typ.Canonical == "" {
					n.typ.Canonical = n.typ.Spelling
				}
			}
			if spec.Result != "" {
				n.Returns(spec.Result)
			}
			for _, p := range spec.Params {
				n.Param(p.Name, p.Type)
			}
			if spec.Virtual {
				n.Virtual()
			}
			if spec.Dynamic {
				n.Dynamic()
			}
			if spec.ID != "" {
				if _, dup := ids[spec.ID]; dup {
					return fmt.Errorf("memtree: duplicate node id %q", spec.ID)
				}
				ids[spec.ID] = n
			}
			links = append(links, link{node: n, spec: spec})
			if err := build(n, spec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := build(t.root, doc.Nodes); err != nil {
		return nil, err
	}

	lookup := func(id string) (*Node, error) {
		if id == "self" {
			return nil, nil
		}
		n, ok := ids[id]
		if !ok {
			return nil, fmt.Errorf("memtree: unknown node id %q", id)
		}
		return n, nil
	}
	for _, l := range links {
		var err error
		if l.spec.Ref != "" {
			if l.node.ref, err = lookup(l.spec.Ref); err != nil {
				return nil, err
			}
		}
		if l.spec.Definition != "" {
			if l.spec.Definition == "self" {
				l.node.def = l.node
			} else if l.node.def, err = lookup(l.spec.Definition); err != nil {
				return nil, err
			}
		}
		if l.spec.Parent != "" {
			if l.node.semParent, err = lookup(l.spec.Parent); err != nil {
				return nil, err
			}
		}
		if l.spec.Template != "" {
			if l.node.tmpl, err = lookup(l.spec.Template); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// Provider parses tree descriptions (.xref.yaml, .xref.json).
type Provider struct{}

var _ source.Provider = Provider{}

func (Provider) Parse(_ context.Context, path string, src []byte) (source.Node, error) {
	t, err := Load(bytes.NewReader(src), path)
	if err != nil {
		return nil, err
	}
	return t.Root(), nil
}
