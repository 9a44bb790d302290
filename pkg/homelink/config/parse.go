package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// FileExtension is the suffix of configuration files read from a directory.
const FileExtension = ".hcl"

// ParseFiles parses each source: a file path, a directory (every
// FileExtension file in it, sorted by name) or raw []byte content.
func ParseFiles(sources ...any) ([]hcl.Body, hcl.Diagnostics) {
	parser := hclparse.NewParser()
	var diags hcl.Diagnostics
	var bodies []hcl.Body

	for _, source := range sources {
		switch v := source.(type) {
		case string:
			info, err := os.Stat(v)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Failed to stat file",
					Detail:   fmt.Sprintf("Error statting %s: %s", v, err),
				})
				continue
			}

			paths := []string{v}
			if info.IsDir() {
				paths, err = dirFiles(v)
				if err != nil {
					diags = diags.Append(&hcl.Diagnostic{
						Severity: hcl.DiagError,
						Summary:  "Failed to read directory",
						Detail:   fmt.Sprintf("Error reading %s: %s", v, err),
					})
					continue
				}
			}

			for _, path := range paths {
				file, parseDiags := parser.ParseHCLFile(path)
				diags = diags.Extend(parseDiags)
				if file != nil {
					bodies = append(bodies, file.Body)
				}
			}

		case []byte:
			file, parseDiags := parser.ParseHCL(v, fmt.Sprintf("<bytes@%p>", v))
			diags = diags.Extend(parseDiags)
			if file != nil {
				bodies = append(bodies, file.Body)
			}

		default:
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid source type",
				Detail:   fmt.Sprintf("Invalid source type: %T", v),
			})
		}
	}

	return bodies, diags
}

func dirFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), FileExtension) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
