// Package provider defines how the chat front-ends talk to model backends.
//
// A Provider turns CompletionParams into a channel of StreamEvent values:
//
//	events, err := p.ChatCompletion(ctx, provider.CompletionParams{
//	    RunID:    uuid.New(),
//	    Model:    "gpt-4o-mini",
//	    Messages: history,
//	    Stream:   true,
//	})
//	if err != nil {
//	    return err
//	}
//	for event := range events {
//	    switch e := event.(type) {
//	    case provider.Chunk:
//	        // incremental assistant text
//	    case provider.Response:
//	        // the complete assistant message
//	    case provider.Error:
//	        // the completion failed
//	    }
//	}
//
// Streams start with a Delim "start" and end with a Delim "end" before the final Response.
// Every event has a JSON form tagged with a "type" field, which the HTTP front-end writes
// as newline delimited JSON.
package provider
