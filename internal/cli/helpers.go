package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/MrEthical07/printdesk"
)

var setenv = os.Setenv

func sessionExpired(err error) *printdesk.SessionExpiredError {
	var se *printdesk.SessionExpiredError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// writeBody pretty-prints JSON bodies and copies anything else verbatim.
func writeBody(out io.Writer, body []byte) error {
	var buf bytes.Buffer
	if json.Valid(body) && json.Indent(&buf, body, "", "  ") == nil {
		buf.WriteByte('\n')
		_, err := out.Write(buf.Bytes())
		return err
	}
	_, err := out.Write(body)
	return err
}
