// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schema of questkeeper export files to
// schemas/, or to the directory given as the only argument.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/holomush/questkeeper/internal/manager"
)

const schemaFile = "questkeeper-export.schema.json"

func main() {
	dir := "schemas"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	outPath, err := generate(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", outPath)
}

func generate(dir string) (string, error) {
	schema, err := manager.ExportSchema()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	outPath := filepath.Join(dir, schemaFile)
	if err := atomic.WriteFile(outPath, bytes.NewReader(append(schema, '\n'))); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return outPath, nil
}
