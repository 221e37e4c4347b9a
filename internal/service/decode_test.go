package service

import (
	"strings"
	"testing"

	"github.com/CZERTAINLY/Prospect/internal/model"

	"github.com/stretchr/testify/require"
)

func TestDecodeResult(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		then     model.Result
		err      string
	}{
		{"pairs", `[["Alice", 5], ["Bob", 2.5]]`, model.Result{{Label: "Alice", Value: 5}, {Label: "Bob", Value: 2.5}}, ""},
		{"empty", `[]`, model.Result{}, ""},
		{"malformed", `[["Alice", 5]`, nil, "unexpected EOF"},
		{"not a list", `{"Alice": 5}`, nil, "jsonschema"},
		{"swapped pair", `[[5, "Alice"]]`, nil, "jsonschema"},
		{"trailing data", `[["Alice", 5]] garbage`, nil, "after top-level value"},
		{"value out of range", `[["Alice", 1e400]]`, nil, "value"},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			got, err := decodeResult([]byte(tt.given))
			if tt.err == "" {
				require.NoError(t, err)
				require.Equal(t, tt.then, got)
				return
			}
			require.ErrorIs(t, err, model.ErrInvalidPayload)
			require.ErrorContains(t, err, tt.err)
			require.Equal(t, 1, strings.Count(err.Error(), model.ErrInvalidPayload.Error()))
			require.Nil(t, got)
		})
	}
}
