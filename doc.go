/*
Package tracekit is a client SDK for emitting hierarchical trace spans to a
tracekit collector.

Create one Client per process and shut it down on exit so queued spans drain:

	client, err := tracekit.New(
		tracekit.WithWorkspaceID("ws-123"),
		tracekit.WithTokenAuth(os.Getenv("TRACEKIT_API_TOKEN")),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Shutdown(context.Background())

	ctx, span, err := client.StartSpan(ctx, "handle-request", trace.SpanTypeCustom)
	if err != nil {
		return err
	}
	defer span.Finish()

	span.SetInput(req)
	span.SetBaggage("user_id", userID)

Spans created with the returned context nest under the current span and
inherit its baggage as of the moment of creation. Finished spans are batched
in the background and exported over HTTP; a full queue drops spans rather
than blocking callers. Cross-service propagation uses the standard
traceparent and baggage headers via InjectHeaders and ExtractContext.
*/
package tracekit
