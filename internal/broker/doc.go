// Package broker fans chat stream events out to live subscribers.
//
// A Broker hands out one Topic per session. Publishing on a topic delivers the event to every
// subscription of that topic; each subscription runs its handler on its own goroutine until
// it is unsubscribed or its context ends.
//
// Local keeps everything in process. NATS publishes the JSON form of each event on a subject
// derived from the topic id, so subscribers can live in other processes.
//
//	feed := broker.Local()
//	sub, err := feed.Topic(ctx, sessionID).Subscribe(ctx, func(ctx context.Context, ev provider.StreamEvent) {
//		// ...
//	})
//	if err != nil {
//		return err
//	}
//	defer sub.Unsubscribe()
package broker
