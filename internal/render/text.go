// Package render projects a completed job result into human or machine
// readable forms. It never changes the result.
package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

const (
	barRune = "█"
	maxBar  = 200
)

// Text writes one line per entry: the label padded to the longest one,
// a bar of value*scale runes and the value itself.
// Negative and NaN values get an empty bar, long bars are cut at maxBar.
func Text(w io.Writer, result model.Result, scale float64) error {
	bw := bufio.NewWriter(w)
	if len(result) == 0 {
		if _, err := bw.WriteString("(no entries)\n"); err != nil {
			return err
		}
		return bw.Flush()
	}

	width := 0
	for _, e := range result {
		width = max(width, utf8.RuneCountInString(e.Label))
	}

	for _, e := range result {
		_, err := fmt.Fprintf(bw, "%-*s |%s %g\n", width, e.Label, bar(e.Value, scale), e.Value)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func bar(value, scale float64) string {
	n := math.Round(value * scale)
	if math.IsNaN(n) || n <= 0 {
		return ""
	}
	return strings.Repeat(barRune, int(min(n, maxBar)))
}
