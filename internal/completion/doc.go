// Package completion streams chat completions from an SSE endpoint.
//
// The client issues one POST per call against an OpenAI-shaped streaming
// endpoint, retries transient failures with exponential backoff, and hands
// back a pull-based Stream of decoded chunks.
//
// # Basic Usage
//
//	client, err := completion.NewClient(completion.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	stream, err := client.StreamCompletion(ctx, messages, completion.Options{
//	    Model:       "gpt-4o",
//	    Temperature: 0.7,
//	})
//	if err != nil {
//	    return err // *completion.TransportError
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//	    fmt.Print(stream.Chunk().Content())
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//
// For callers that only need the final text, SimpleCompletion drains the
// stream and returns the trimmed concatenation of every chunk's content.
//
// # Wire Format
//
// Requests go to {BaseURL}?model=&stream=true&token=&temperature=&max_tokens=
// with a JSON body of {"messages": [...]}. The response body is
// text/event-stream. Each event line is either "data: {json chunk}" or
// "data: [DONE]". Blank lines and ":" comment lines are ignored, and a frame
// whose JSON cannot be decoded is logged and skipped rather than failing the
// stream.
//
// # Retry Policy
//
// Only the statuses 429, 500, 502, 503 and 504, plus network and timeout
// errors, are retried. The delay starts at RetryConfig.BaseDelay and is
// multiplied by RetryConfig.Multiplier after every attempt, capped at
// RetryConfig.MaxDelay. A Retry-After header on the response takes precedence
// when it asks for a longer wait. Config.Timeout bounds dialing, response
// headers and every read of the body: a stream that goes quiet for longer
// ends with a *TransportError wrapping ErrStalled. A stream that keeps
// producing data is never cut off.
//
// When retries are exhausted, or the endpoint answers with any other non-2xx
// status, the call fails with a *TransportError carrying the status and body.
//
// # Cancellation
//
// Cancelling the context passed to StreamCompletion, or calling Stream.Close,
// tears down the underlying connection so the upstream producer stops.
package completion
