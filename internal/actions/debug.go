package actions

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger writes request and response details of every outbound call.
// A nil *DebugLogger logs nothing.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(actionID int64, kind string, req *http.Request) {
	if d == nil {
		return
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[Action %d] >>> REQUEST: %s\n", actionID, kind)
	fmt.Fprintf(&buf, "  %s %s\n", req.Method, redactURL(req.URL.String()))
	writeHeaders(&buf, req.Header)

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil && len(body) > 0 {
			req.Body = io.NopCloser(bytes.NewReader(body))
			fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogResponse(actionID int64, kind string, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[Action %d] <<< RESPONSE: %s (%s)\n", actionID, kind, duration.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	writeHeaders(&buf, resp.Header)
	if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogError(actionID int64, kind string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Action %d] !!! ERROR: %s (%s)\n  %s\n",
		actionID, kind, duration.Round(time.Millisecond), errMsg)
}

func writeHeaders(buf *bytes.Buffer, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	buf.WriteString("  Headers:\n")
	for _, name := range names {
		value := strings.Join(h[name], ", ")
		if name == "Authorization" {
			value = "[redacted]"
		}
		fmt.Fprintf(buf, "    %s: %s\n", name, value)
	}
}

// redactURL hides bot tokens (/bot<token>/) and login keys (key=...).
func redactURL(u string) string {
	if i := strings.Index(u, "/bot"); i >= 0 {
		if j := strings.Index(u[i+4:], "/"); j >= 0 {
			u = u[:i+4] + "[redacted]" + u[i+4+j:]
		}
	}
	if i := strings.Index(u, "key="); i >= 0 {
		end := strings.IndexByte(u[i:], '&')
		if end < 0 {
			u = u[:i+4] + "[redacted]"
		} else {
			u = u[:i+4] + "[redacted]" + u[i+end:]
		}
	}
	return u
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
