package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"boardsync/domain"
)

// Stream opens the workspace event stream and invokes apply for every
// event until the context is cancelled or the connection drops. Events
// that fail to decode are skipped; the stream itself stays up.
func (c *Client) Stream(ctx context.Context, apply func(domain.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.wsPath("/stream"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	// The client's default timeout would cut a long-lived stream.
	streamHTTP := &http.Client{Transport: c.http.Transport}
	resp, err := streamHTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.Event
		if err := sonic.UnmarshalString(strings.TrimPrefix(line, "data: "), &ev); err != nil {
			continue
		}
		apply(ev)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
