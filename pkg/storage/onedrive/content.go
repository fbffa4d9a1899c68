package onedrive

import (
	"bytes"
	"fmt"
	"io"
)

// normalizeContent converts every content shape the download boundary can
// produce into a single byte slice. The switch is the one place shape
// handling is allowed to live; an unrecognized shape is a hard error naming
// the offending type, never a silent empty buffer.
func normalizeContent(v any) ([]byte, error) {
	switch content := v.(type) {
	case nil:
		return nil, fmt.Errorf("download returned no content")
	case []byte:
		return content, nil
	case *bytes.Buffer:
		return content.Bytes(), nil
	case io.ReadCloser:
		defer content.Close()
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("failed to read download stream: %w", err)
		}
		return data, nil
	case io.Reader:
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, fmt.Errorf("failed to read download stream: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unrecognized download content type %T", v)
	}
}
