// Package meta loads YAML resources (configuration) through afs. Resources
// may reference environment variables with ${env.KEY} or
// ${env.KEY:-default}; they are expanded before decoding.
package meta

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service loads resources relative to a base URL
type Service struct {
	fs      afs.Service
	baseURL string
	options []storage.Option
}

// Load downloads URL, expands environment expressions and decodes the YAML
// document into target. Relative URLs are resolved against the base URL.
func (s *Service) Load(ctx context.Context, URL string, target interface{}) error {
	data, err := s.Download(ctx, URL)
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal([]byte(expandEnvExpr(string(data))), target); err != nil {
		return fmt.Errorf("failed to decode %v: %w", s.resolve(URL), err)
	}
	return nil
}

// Download returns the raw resource.
func (s *Service) Download(ctx context.Context, URL string) ([]byte, error) {
	location := s.resolve(URL)
	data, err := s.fs.DownloadWithURL(ctx, location, s.options...)
	if err != nil {
		return nil, fmt.Errorf("failed to download %v: %w", location, err)
	}
	return data, nil
}

func (s *Service) resolve(URL string) string {
	if s.baseURL == "" || url.Scheme(URL, "") != "" || len(URL) > 0 && URL[0] == '/' {
		return URL
	}
	return url.Join(s.baseURL, URL)
}

// New creates a meta service; options are passed to every afs download
// (e.g. an *embed.FS for embed:// URLs).
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{fs: fs, baseURL: baseURL, options: options}
}
