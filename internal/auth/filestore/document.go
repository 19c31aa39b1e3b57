// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package filestore

import (
	"bytes"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// document is an ordered set of sections of string key/value pairs.
type document struct {
	sections []*section
}

type section struct {
	name   string
	keys   []string
	values map[string]string
}

func (d *document) lookup(name string) *section {
	for _, s := range d.sections {
		if s.name == name {
			return s
		}
	}
	return nil
}

// section returns the named section, appending it when missing.
func (d *document) section(name string) *section {
	if s := d.lookup(name); s != nil {
		return s
	}
	s := &section{name: name, values: make(map[string]string)}
	d.sections = append(d.sections, s)
	return s
}

func (s *section) set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func decode(data []byte) (*document, error) {
	doc := &document{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, oops.With("line", top.Line).Errorf("top level must be a mapping of sections")
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		name, body := top.Content[i], top.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, oops.
				With("section", name.Value).
				With("line", body.Line).
				Errorf("section must be a mapping")
		}
		s := doc.section(name.Value)
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, value := body.Content[j], body.Content[j+1]
			if value.Kind != yaml.ScalarNode {
				return nil, oops.
					With("section", name.Value).
					With("key", key.Value).
					With("line", value.Line).
					Errorf("value must be a scalar")
			}
			s.set(key.Value, value.Value)
		}
	}
	return doc, nil
}

func (d *document) encode() ([]byte, error) {
	top := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range d.sections {
		body := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range s.keys {
			body.Content = append(body.Content, scalar(k), scalar(s.values[k]))
		}
		top.Content = append(top.Content, scalar(s.name), body)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{top}}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scalar tags every value as a string so the encoder quotes values such as
// "yes" that would otherwise read back as booleans.
func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
