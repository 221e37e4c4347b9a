package render

import (
	"encoding/json"
	"io"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

// JSON writes the result in its wire form, [["label", value], ...].
func JSON(w io.Writer, result model.Result) error {
	if result == nil {
		result = model.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
