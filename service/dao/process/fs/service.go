// Package fs implements the terminated-process history log: records are
// stored as JSON documents through afs, so the log can live in memory
// (mem://), on disk or in any afs-supported storage. The log is bounded;
// the oldest records (lowest pids) are pruned first.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/kproc/runtime/process"
	"github.com/viant/kproc/service/dao"
	"github.com/viant/kproc/service/dao/criteria"
)

const extension = ".json"

// Service implements a bounded, afs-backed record log
type Service struct {
	baseURL string
	limit   int
	fs      afs.Service
	mu      sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[process.PID, process.Record] = (*Service)(nil)

// Save persists a record and prunes the oldest entries over the limit.
func (s *Service) Save(ctx context.Context, record *process.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal process %v: %w", record.PID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.recordURL(record.PID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save process to %s: %w", filePath, err)
	}
	return s.prune(ctx)
}

// Load retrieves a record.
func (s *Service) Load(ctx context.Context, pid process.PID) (*process.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filePath := s.recordURL(pid)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if process exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read process file: %w", err)
	}
	record := &process.Record{}
	if err = json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal process data: %w", err)
	}
	return record, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, pid process.PID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.recordURL(pid)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if process exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	return s.fs.Delete(ctx, filePath)
}

// List returns records ordered by pid.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*process.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pids, err := s.pids(ctx)
	if err != nil {
		return nil, err
	}
	var records []*process.Record
	for _, pid := range pids {
		data, err := s.fs.DownloadWithURL(ctx, s.recordURL(pid))
		if err != nil {
			return nil, fmt.Errorf("failed to read process %v: %w", pid, err)
		}
		record := &process.Record{}
		if err = json.Unmarshal(data, record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal process %v: %w", pid, err)
		}
		if !criteria.FilterByState(record.GetState(), parameters) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Limit returns the maximum number of retained records; 0 means unbounded.
func (s *Service) Limit() int {
	return s.limit
}

func (s *Service) prune(ctx context.Context) error {
	if s.limit <= 0 {
		return nil
	}
	pids, err := s.pids(ctx)
	if err != nil {
		return err
	}
	for len(pids) > s.limit {
		if err = s.fs.Delete(ctx, s.recordURL(pids[0])); err != nil {
			return fmt.Errorf("failed to prune process %v: %w", pids[0], err)
		}
		pids = pids[1:]
	}
	return nil
}

func (s *Service) pids(ctx context.Context) ([]process.PID, error) {
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list process files: %w", err)
	}
	var ret []process.PID
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), extension) {
			continue
		}
		pid, err := strconv.ParseUint(strings.TrimSuffix(object.Name(), extension), 10, 64)
		if err != nil {
			continue
		}
		ret = append(ret, process.PID(pid))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

func (s *Service) recordURL(pid process.PID) string {
	return url.Join(s.baseURL, pid.String()+extension)
}

// New creates a history log rooted at baseURL keeping at most limit records.
func New(ctx context.Context, fs afs.Service, baseURL string, limit int) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if fs == nil {
		fs = afs.New()
	}
	if url.Scheme(baseURL, "") == "" {
		baseURL = url.Normalize(path.Clean(baseURL), file.Scheme)
	}
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create history location %v: %w", baseURL, err)
		}
	}
	return &Service{baseURL: baseURL, limit: limit, fs: fs}, nil
}
