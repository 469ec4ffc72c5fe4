/*
Package client is the point-to-point request path of hypernet.

A Link opens one TCP connection per request, writes a single encoded frame,
half-closes its side and reads the single response frame the node writes
before closing. The coordinator uses it to drive collective operations and
nodes use it to relay flood and broadcast messages to their neighbors.

Every request carries a deadline: the earlier of the context's deadline and
the link timeout. Failures come back as *CallError, which names the target
label and the request kind and wraps one of:

	ErrConnectionFailed          the connect did not succeed
	ErrTimeout                   no response before the deadline
	ErrNoResponse                the node closed without answering
	protocol.ErrFrameTooLarge    raised before any network write
	protocol.ErrMalformedFrame   the response did not decode
	*RemoteError                 the node answered Err
	ErrUnexpectedResponse        the node answered with another variant

Classify with errors.Is and errors.As. There are no retries.

	link := client.NewLink(2 * time.Second)
	v, err := link.GetValue(ctx, identity)
*/
package client
