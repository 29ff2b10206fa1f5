package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vietddude/b24/internal/core/domain"
)

// batchChunkSize is the portal's maximum commands per batch call.
const batchChunkSize = 50

// Command is one entry in a batch call. Params values are rendered with
// their default string form.
type Command struct {
	Method string
	Params map[string]any
}

// BatchChunk pairs a slice of commands with the chunk's outcome.
type BatchChunk struct {
	Commands []Command
	Response *domain.Response
	Err      error
}

// CallBatch splits commands into portal-sized chunks and issues one
// admission unit per chunk, so batches pace through the limiter like any
// other traffic. Results come back one response per chunk, in order.
func (c *Client) CallBatch(ctx context.Context, commands []Command, haltOnError bool) ([]BatchChunk, error) {
	if len(commands) == 0 {
		return nil, nil
	}

	chunks := make([]BatchChunk, 0, (len(commands)+batchChunkSize-1)/batchChunkSize)
	for start := 0; start < len(commands); start += batchChunkSize {
		end := min(start+batchChunkSize, len(commands))
		part := commands[start:end]

		cmd := make(map[string]string, len(part))
		for i, command := range part {
			cmd[fmt.Sprintf("c%d", start+i)] = encodeCommand(command)
		}

		resp, err := c.call(ctx, "batch", map[string]any{
			"halt": boolToInt(haltOnError),
			"cmd":  cmd,
		}, 0)
		chunks = append(chunks, BatchChunk{Commands: part, Response: resp, Err: err})

		if err != nil && haltOnError {
			return chunks, err
		}
	}
	return chunks, nil
}

// encodeCommand renders a command in the portal's "method?query" form.
func encodeCommand(cmd Command) string {
	if len(cmd.Params) == 0 {
		return cmd.Method
	}
	values := url.Values{}
	for k, v := range cmd.Params {
		values.Set(k, fmt.Sprint(v))
	}
	return cmd.Method + "?" + values.Encode()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
