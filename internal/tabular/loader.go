// Package tabular reads the delimited attribute export and renames its
// columns to canonical field names.
package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"

	pserrors "parcelsync/internal/errors"
	"parcelsync/internal/logging"
	"parcelsync/internal/schema"
	"parcelsync/internal/types"
)

// DefaultDelimiter is the appraisal export's column separator.
const DefaultDelimiter = '|'

// Options tune the export reader.
type Options struct {
	Delimiter rune
	Workers   int
}

// Loader loads an export and hands back rows keyed by canonical field name.
type Loader struct {
	schema *schema.Schema
	opts   Options
}

// NewLoader creates a Loader. A zero Delimiter means '|'; a zero Workers
// means one worker per CPU.
func NewLoader(s *schema.Schema, opts Options) *Loader {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Loader{schema: s, opts: opts}
}

// Load reads the export at uri, a path or file:// URL. Row order follows the
// file. Failing to open or parse the export is a TransportError.
func (l *Loader) Load(ctx context.Context, uri string) ([]types.Row, error) {
	path, err := resolve(uri)
	if err != nil {
		return nil, pserrors.NewTransportError("export", "load", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, pserrors.NewTransportError("export", "load", err)
	}
	defer f.Close()

	rows, err := l.Read(ctx, f)
	if err != nil {
		return nil, pserrors.NewTransportError("export", "load "+path, err)
	}
	logging.FromContext(ctx).Debug().Str("uri", uri).Int("rows", len(rows)).Msg("export loaded")
	return rows, nil
}

// Read parses a delimited stream with a header row.
func (l *Loader) Read(ctx context.Context, r io.Reader) ([]types.Row, error) {
	cr := csv.NewReader(r)
	cr.Comma = l.opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	type job struct {
		idx  int
		cols []string
	}

	// Pipeline: producer (I/O) -> workers (renaming). Each worker writes its
	// own slot so output order matches input order.
	jobs := make(chan job, 4096)
	var (
		mu   sync.Mutex
		rows []types.Row
		wg   sync.WaitGroup
	)

	wg.Add(l.opts.Workers)
	for i := 0; i < l.opts.Workers; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				raw := make(types.Row, len(header))
				for k, h := range header {
					if k < len(j.cols) {
						raw[h] = strings.TrimSpace(j.cols[k])
					}
				}
				row := l.schema.Rename(raw)

				mu.Lock()
				rows[j.idx] = row
				mu.Unlock()
			}
		}()
	}

	var readErr error
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		cols, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if blank(cols) {
			continue
		}
		mu.Lock()
		rows = append(rows, nil)
		mu.Unlock()
		jobs <- job{idx: n, cols: cols}
		n++
	}
	close(jobs)
	wg.Wait()

	if readErr != nil {
		return nil, readErr
	}
	return rows, nil
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func resolve(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported export scheme %q", u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file URL with remote host %q", u.Host)
	}
	return u.Path, nil
}
