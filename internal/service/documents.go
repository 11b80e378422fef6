package service

import (
	"crypto/sha1"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sedar-analyst/internal/domain"
)

var documentExts = map[string]bool{".txt": true, ".md": true}

// LoadDocuments expands directories and glob patterns into plain-text
// documents. Files with other extensions are skipped.
func LoadDocuments(paths []string) ([]domain.Document, error) {
	seen := map[string]bool{}
	var files []string
	add := func(p string) {
		if documentExts[strings.ToLower(filepath.Ext(p))] && !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, domain.Invalid("load documents", "bad pattern %q: %v", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, domain.E("load documents", domain.ErrNotFound, err)
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, domain.E("load documents", domain.ErrNotFound, err)
			}
		}
	}
	if len(files) == 0 {
		return nil, domain.Invalid("load documents", "no .txt or .md documents found in %s", strings.Join(paths, ", "))
	}
	sort.Strings(files)

	docs := make([]domain.Document, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{ID: documentID(f), Path: f, Content: string(data)})
	}
	return docs, nil
}

func documentID(path string) string {
	h := sha1.Sum([]byte(filepath.ToSlash(path)))
	return hex.EncodeToString(h[:8])
}
