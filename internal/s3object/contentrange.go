package s3object

import (
	"fmt"
	"strconv"
	"strings"
)

// parseContentRange parses a "bytes START-END/TOTAL" header value, the
// same shape the teacher's ParseContentRange (internal/http/client.go)
// parses, extended for S3's native-part responses where TOTAL may be
// "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.SplitN(header, "/", 2)
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("s3object: invalid content-range %q", header)
	}

	rangeParts := strings.SplitN(parts[0], "-", 2)
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("s3object: invalid content-range %q", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("s3object: invalid content-range start in %q: %w", header, err)
	}
	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("s3object: invalid content-range end in %q: %w", header, err)
	}

	if parts[1] == "*" {
		return start, end, -1, nil
	}
	total, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("s3object: invalid content-range total in %q: %w", header, err)
	}
	return start, end, total, nil
}
