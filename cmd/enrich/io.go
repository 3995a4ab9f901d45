package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/enrich-service/internal/entity"
	"github.com/user/enrich-service/internal/table"
)

// readTable loads a CSV file, or stdin when path is "-".
func readTable(path string, stdin io.Reader) (*entity.Table, error) {
	if path == "-" {
		return table.ReadCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return table.ReadCSV(f)
}

// openOutput returns a writer for path, or stdout when path is "-".
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// loadSpec reads fields from a YAML file and --field flags, file first.
// The file holds either {fields: [...]} or a bare list of fields.
func loadSpec(path string, flags []string) (entity.ExtractionSpec, error) {
	var spec entity.ExtractionSpec
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return spec, err
		}
		if err := yaml.Unmarshal(data, &spec); err != nil || len(spec.Fields) == 0 {
			var list []entity.FieldSpec
			if lerr := yaml.Unmarshal(data, &list); lerr != nil {
				if err == nil {
					err = lerr
				}
				return spec, fmt.Errorf("parse fields file %s: %w", path, err)
			}
			spec.Fields = list
		}
	}
	for _, f := range flags {
		field, err := parseFieldFlag(f)
		if err != nil {
			return spec, err
		}
		spec.Fields = append(spec.Fields, field)
	}
	return spec, nil
}

// parseFieldFlag accepts "name" or "name=description".
func parseFieldFlag(s string) (entity.FieldSpec, error) {
	name, desc, _ := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return entity.FieldSpec{}, errors.New("--field needs a name")
	}
	return entity.FieldSpec{Name: name, Description: strings.TrimSpace(desc)}, nil
}
