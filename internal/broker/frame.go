package broker

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nowplaying/playerapi/internal/player"
)

// WriteEvent writes one SSE frame:
//
//	event: <name>
//	data: <json value>
//	<blank line>
//
// HTML characters are not escaped so the data line matches what a browser's
// JSON.stringify would produce.
func WriteEvent(w io.Writer, name string, value any) error {
	var buf bytes.Buffer
	if err := appendEvent(&buf, name, value); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func appendEvent(buf *bytes.Buffer, name string, value any) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}
	buf.WriteString("event: ")
	buf.WriteString(name)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return nil
}

func marshalValue(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// encodeDelta renders one frame per change. Changes whose value cannot be
// encoded are skipped and reported in skipped.
func encodeDelta(d player.Delta) (frames []byte, skipped []player.Field) {
	var buf bytes.Buffer
	for _, c := range d {
		if err := appendEvent(&buf, string(c.Field), c.Value); err != nil {
			skipped = append(skipped, c.Field)
		}
	}
	return buf.Bytes(), skipped
}
