// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// statAreas are the source roots reported separately.
var statAreas = []string{"cmd", "internal", "pkg"}

// areaStats counts the Go sources below one source root.
type areaStats struct {
	Packages  int `json:"packages"`
	Files     int `json:"files"`
	ProdLines int `json:"prod_lines"`
	TestLines int `json:"test_lines"`
}

type statsReport struct {
	Areas     map[string]*areaStats `json:"areas"`
	ProdLines int                   `json:"go_loc_prod"`
	TestLines int                   `json:"go_loc_test"`
	DocWords  int                   `json:"doc_wc"`
}

// Stats prints Go lines per source root and documentation word counts as a
// JSON record.
func Stats() error {
	report, err := collectStats(os.DirFS("."))
	if err != nil {
		return err
	}
	line, err := json.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

func collectStats(fsys fs.FS) (*statsReport, error) {
	report := &statsReport{Areas: make(map[string]*areaStats, len(statAreas))}
	for _, area := range statAreas {
		files, err := doublestar.Glob(fsys, area+"/**/*.go")
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", area, err)
		}
		st := &areaStats{}
		dirs := make(map[string]bool)
		for _, name := range files {
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, err
			}
			n := bytes.Count(data, []byte("\n"))
			if strings.HasSuffix(name, "_test.go") {
				st.TestLines += n
			} else {
				st.ProdLines += n
				dirs[path.Dir(name)] = true
			}
			st.Files++
		}
		st.Packages = len(dirs)
		report.Areas[area] = st
		report.ProdLines += st.ProdLines
		report.TestLines += st.TestLines
	}

	docs, err := doublestar.Glob(fsys, "*.md")
	if err != nil {
		return nil, err
	}
	for _, name := range docs {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		report.DocWords += len(strings.Fields(string(data)))
	}
	return report, nil
}
