package service_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/CZERTAINLY/Prospect/internal/jobtest"
	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/render"
	"github.com/CZERTAINLY/Prospect/internal/service"
)

func TestWriterSink(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		format   string
		then     string
	}{
		{"text", model.FormatText, "Alice |██████████ 5\nBob   |████ 2\n"},
		{"default", "", "Alice |██████████ 5\nBob   |████ 2\n"},
		{"json", model.FormatJSON, "[\n  [\n    \"Alice\",\n    5\n  ],\n  [\n    \"Bob\",\n    2\n  ]\n]\n"},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			err := service.NewWriterSink(&buf, tt.format, 2).Publish(t.Context(), alice)
			require.NoError(t, err)
			require.Equal(t, tt.then, buf.String())
		})
	}

	t.Run("unsupported format", func(t *testing.T) {
		err := service.NewWriterSink(&bytes.Buffer{}, "xml", 1).Publish(t.Context(), alice)
		require.ErrorContains(t, err, `unsupported output format: "xml"`)
	})
}

func TestDirSink(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sink, err := service.NewDirSink(dir)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(t.Context(), alice))
	require.NoError(t, sink.Close())

	jsons, err := filepath.Glob(filepath.Join(dir, "prospect-*.json"))
	require.NoError(t, err)
	require.Len(t, jsons, 1)
	b, err := os.ReadFile(jsons[0])
	require.NoError(t, err)
	require.JSONEq(t, `[["Alice", 5], ["Bob", 2]]`, string(b))

	xlsxs, err := filepath.Glob(filepath.Join(dir, "prospect-*.xlsx"))
	require.NoError(t, err)
	require.Len(t, xlsxs, 1)
	f, err := excelize.OpenFile(xlsxs[0])
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	rows, err := f.GetRows(render.Sheet)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"Label", "Value"}, {"Alice", "5"}, {"Bob", "2"}}, rows)

	t.Run("closed", func(t *testing.T) {
		err := sink.Publish(t.Context(), alice)
		require.EqualError(t, err, "root already closed")
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := service.NewDirSink(filepath.Join(dir, "does-not-exist"))
		require.Error(t, err)
	})
}

type failingSink struct{ err error }

func (s failingSink) Publish(context.Context, model.Result) error { return s.err }

func TestPublishJoinsErrors(t *testing.T) {
	t.Parallel()
	srv := jobtest.NewServer(t, jobtest.Done(alice))
	first := errors.New("first")
	second := errors.New("second")
	var buf syncBuffer

	svc := newService(t, srv, model.Service{Mode: model.ServiceModeManual}).
		WithSinks(t.Context(),
			failingSink{first},
			service.NewWriterSink(&buf, model.FormatText, 1),
			failingSink{second},
		)
	err := svc.Do(t.Context())
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	require.NotEmpty(t, buf.String(), "working sinks still get the result")
}
