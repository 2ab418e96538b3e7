package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
)

// ErrNotFound means the disclosure source has no document for the reference.
var ErrNotFound = errors.New("document not found")

// DisclosureSource fetches raw disclosure content by document reference.
// The gateway service downloads and unzips filings from the regulator; this
// side only consumes what it hands over.
type DisclosureSource interface {
	Fetch(ctx context.Context, documentRef string) ([]byte, error)
}

// Spool reads disclosures the gateway wrote into a spool directory, one
// file per document reference (receipt number).
type Spool struct {
	Dir string
}

func NewSpool(dir string) *Spool {
	return &Spool{Dir: dir}
}

// Fetch returns the raw bytes of <dir>/<ref>.txt (or <ref> with any
// extension if the exact name is absent).
func (s *Spool) Fetch(ctx context.Context, documentRef string) ([]byte, error) {
	if strings.ContainsAny(documentRef, `/\`) {
		return nil, fmt.Errorf("%w: invalid reference %q", ErrNotFound, documentRef)
	}

	for _, cand := range []string{
		filepath.Join(s.Dir, documentRef+".txt"),
		filepath.Join(s.Dir, documentRef),
	} {
		b, err := os.ReadFile(cand)
		if err == nil {
			return b, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", cand, err)
		}
	}

	// Fall back to a prefix scan: the gateway sometimes appends the corp
	// code to the file name.
	match := ""
	err := godirwalk.Walk(s.Dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if strings.HasPrefix(filepath.Base(path), documentRef) {
				match = path
				return errStopWalk
			}
			return nil
		},
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, err
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentRef)
	}
	return os.ReadFile(match)
}

// List returns the document references currently present in the spool.
func (s *Spool) List() ([]string, error) {
	var refs []string
	err := godirwalk.Walk(s.Dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			name := filepath.Base(path)
			refs = append(refs, strings.TrimSuffix(name, filepath.Ext(name)))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

var errStopWalk = errors.New("stop walk")
