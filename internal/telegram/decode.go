package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxUpdateSize bounds a webhook body; real updates are a few KiB.
const maxUpdateSize = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxUpdateSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	return nil
}
