package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spiffcs/prlens/internal/model"
)

// MemorySource serves pre-fetched pull requests, e.g. from a `prlens fetch`
// dump. Unknown refs are reported as not found.
type MemorySource struct {
	prs  map[model.PRRef]model.RawPR
	refs []model.PRRef
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource indexes prs by their ref. Later duplicates win.
func NewMemorySource(prs ...model.RawPR) *MemorySource {
	s := &MemorySource{prs: make(map[model.PRRef]model.RawPR, len(prs))}
	for _, pr := range prs {
		if _, dup := s.prs[pr.Ref]; !dup {
			s.refs = append(s.refs, pr.Ref)
		}
		s.prs[pr.Ref] = pr
	}
	return s
}

// FetchPR returns the stored PR.
func (s *MemorySource) FetchPR(ctx context.Context, ref model.PRRef) (model.RawPR, error) {
	if err := ctx.Err(); err != nil {
		return model.RawPR{}, err
	}
	pr, ok := s.prs[ref]
	if !ok {
		return model.RawPR{}, &model.NotFoundError{Ref: ref}
	}
	return pr, nil
}

// Refs returns the stored refs in load order.
func (s *MemorySource) Refs() []model.PRRef {
	return append([]model.PRRef(nil), s.refs...)
}

// ReadRawPRs decodes either a single RawPR object or an array of them.
func ReadRawPRs(r io.Reader) ([]model.RawPR, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pull request data: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("pull request data is empty")
	}

	if trimmed[0] == '[' {
		var prs []model.RawPR
		if err := json.Unmarshal(trimmed, &prs); err != nil {
			return nil, fmt.Errorf("failed to parse pull request list: %w", err)
		}
		return prs, nil
	}

	var pr model.RawPR
	if err := json.Unmarshal(trimmed, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pull request: %w", err)
	}
	return []model.RawPR{pr}, nil
}

// LoadFiles reads raw PR dumps from the given paths into a MemorySource.
func LoadFiles(paths ...string) (*MemorySource, error) {
	var all []model.RawPR
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		prs, err := ReadRawPRs(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, pr := range prs {
			if pr.Ref.IsZero() {
				return nil, fmt.Errorf("%s: pull request without a ref", path)
			}
		}
		all = append(all, prs...)
	}
	return NewMemorySource(all...), nil
}
