// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	goyaml "gopkg.in/yaml.v3"
)

// SchemaID is the $id of the controller configuration schema.
const SchemaID = "https://arobito.dev/schemas/controller.schema.json"

var compiled = sync.OnceValues(compileSchema)

// GenerateSchema reflects the JSON Schema of Config.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Arobito Controller Configuration"
	schema.Description = "Schema for controller.yaml"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

func compileSchema() (*jschema.Schema, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(SchemaID, doc); err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	sch, err := c.Compile(SchemaID)
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return sch, nil
}

// ValidateYAML checks a controller.yaml document against the schema. An
// empty document is valid.
func ValidateYAML(data []byte) error {
	var raw any
	if err := goyaml.Unmarshal(data, &raw); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}
	if raw == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return oops.Code("CONFIG_FILE_INVALID").Wrap(err)
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Wrap(err)
	}
	return nil
}
