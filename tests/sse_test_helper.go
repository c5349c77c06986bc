package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// waitForNotification reads SSE "data:" frames from body until one decodes as
// a JSON-RPC notification with the given method. The scan runs in its own
// goroutine so the deadline fires even while the read blocks.
func waitForNotification(ctx context.Context, body io.Reader, method string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type frame struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no %q notification before deadline: %w", method, ctx.Err())
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("reading stream: %w", err)
			}
			return fmt.Errorf("stream ended without a %q notification", method)
		case line := <-lines:
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var f frame
			if err := json.Unmarshal([]byte(data), &f); err != nil || f.JSONRPC != "2.0" {
				continue
			}
			if f.Method == method {
				return nil
			}
		}
	}
}
