package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/garyjia/claim-intake/internal/extraction"
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".txt":  true,
}

// loadDocument reads a file into a claim document. The media type is
// sniffed from the content.
func loadDocument(path string, category entity.DocumentCategory) (*entity.ClaimDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	mediaType := extraction.CanonicalMediaType("", data)
	return entity.NewClaimDocument(filepath.Base(path), mediaType, category, data), nil
}

// collectFiles lists the supported documents under dir in lexical order
func collectFiles(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

// categoryFor picks the flag value, or the name of the file's parent
// directory when it names a category
func categoryFor(path, flag string) entity.DocumentCategory {
	if flag != "" {
		return entity.ParseDocumentCategory(flag)
	}
	return entity.ParseDocumentCategory(filepath.Base(filepath.Dir(path)))
}
