package llm

// Chunk is one element of a streaming response. Exactly one of the terminal
// markers is set on the last chunk of a completed stream: Done for a normal
// end, Err for a transport failure. A channel that closes with neither was
// cancelled and the text seen so far is partial.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// StreamResult is the materialized outcome of draining one stream.
type StreamResult struct {
	Text       string
	Incomplete bool
	Err        error
}

// Collect drains a chunk channel, invoking onText for each piece of partial
// output so callers can render progress. A cancelled stream yields an
// Incomplete result carrying the text emitted so far rather than an error:
// the operator already saw that text and it must be accounted for honestly.
func Collect(ch <-chan Chunk, onText func(string)) StreamResult {
	var result StreamResult
	done := false
	for chunk := range ch {
		if chunk.Err != nil {
			result.Err = chunk.Err
			break
		}
		if chunk.Text != "" {
			result.Text += chunk.Text
			if onText != nil {
				onText(chunk.Text)
			}
		}
		if chunk.Done {
			done = true
			break
		}
	}
	if !done && result.Err == nil {
		// Closed without an end marker: the request was cancelled or the
		// stream was cut short upstream. Both leave partial text.
		result.Incomplete = true
	}
	return result
}
