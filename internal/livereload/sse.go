package livereload

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Subscribe connects to the change stream served at baseURL and calls fn for
// every change event until ctx is done or the server closes the stream.
func Subscribe(ctx context.Context, baseURL string, fn func(Change)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+EventPath, nil)
	if err != nil {
		return fmt.Errorf("creating event request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status from %s: %s", req.URL, resp.Status)
	}

	err = readEvents(resp.Body, func(event, data string) error {
		if event != "change" {
			return nil
		}
		var change Change
		if err := json.Unmarshal([]byte(data), &change); err != nil {
			return fmt.Errorf("decoding change event: %w", err)
		}
		fn(change)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents splits an event stream into (event, data) pairs. Multiple data
// lines are joined with newlines.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	dispatch := func() error {
		defer func() {
			event = ""
			data = data[:0]
		}()
		if len(data) == 0 {
			return nil
		}
		name := event
		if name == "" {
			name = "message"
		}
		return fn(name, strings.Join(data, "\n"))
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return dispatch()
}
