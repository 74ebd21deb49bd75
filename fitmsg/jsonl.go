package fitmsg

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// WriteJSONL writes one JSON object per message in file order.
func WriteJSONL(w io.Writer, messages []Message) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// MarshalJSONL renders messages as JSONL bytes.
func MarshalJSONL(messages []Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, messages); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
