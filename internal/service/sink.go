package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/render"
)

const (
	reportPrefix = "prospect-"
	reportStamp  = "2006-01-02-15-04-05.000"

	// reports published within the same millisecond get a -1, -2, ... suffix
	maxReportSuffix = 100
)

// sinks builds the outputs from the service configuration. Results always
// go to stdout, a report directory is optional.
func sinks(_ context.Context, cfg model.Service) ([]model.Sink, error) {
	ret := []model.Sink{NewWriterSink(os.Stdout, cfg.FormatOrDefault(), cfg.ScaleOrDefault())}
	if cfg.Dir != "" {
		s, err := NewDirSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

func publish(ctx context.Context, sinks []model.Sink, result model.Result) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Publish(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeSinks(ctx context.Context, sinks []model.Sink) {
	for _, s := range sinks {
		if closer, ok := s.(model.SinkCloser); ok {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "closing sink have failed", "error", err)
			}
		}
	}
}

// WriterSink renders every result to w, as text bars or JSON.
type WriterSink struct {
	w      io.Writer
	format string
	scale  float64
}

func NewWriterSink(w io.Writer, format string, scale float64) WriterSink {
	return WriterSink{w: w, format: format, scale: scale}
}

func (s WriterSink) Publish(_ context.Context, result model.Result) error {
	if s.w == nil {
		s.w = os.Stdout
	}
	switch s.format {
	case model.FormatJSON:
		return render.JSON(s.w, result)
	case model.FormatText, "":
		return render.Text(s.w, result, s.scale)
	default:
		return fmt.Errorf("unsupported output format: %q", s.format)
	}
}

// DirSink stores every result as a pair of xlsx and json reports inside a
// directory. Files can't escape it.
type DirSink struct {
	root *os.Root
	now  func() time.Time
}

func NewDirSink(path string) (*DirSink, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirSink{root: root, now: time.Now}, nil
}

func (s *DirSink) Publish(ctx context.Context, result model.Result) error {
	if s.root == nil {
		return errors.New("root already closed")
	}

	xlsx, err := render.XLSX(result)
	if err != nil {
		return err
	}
	var js bytes.Buffer
	if err := render.JSON(&js, result); err != nil {
		return err
	}

	stamp := reportPrefix + s.now().Format(reportStamp)
	for n := 0; n <= maxReportSuffix; n++ {
		base := stamp
		if n > 0 {
			base = fmt.Sprintf("%s-%d", stamp, n)
		}
		err := s.write(base+".xlsx", xlsx)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		err = s.write(base+".json", js.Bytes())
		if errors.Is(err, fs.ErrExist) {
			_ = s.root.Remove(base + ".xlsx")
			continue
		}
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "report stored", "path", base, "entries", len(result))
		return nil
	}
	return fmt.Errorf("creating report: too many reports named %s", stamp)
}

// write never replaces an existing report.
func (s *DirSink) write(path string, data []byte) error {
	f, err := s.root.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	return nil
}

func (s *DirSink) Close() error {
	if s.root == nil {
		return nil
	}
	err := s.root.Close()
	s.root = nil
	return err
}
