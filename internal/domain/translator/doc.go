/*
Package translator converts between OpenAI-style chat requests and the single
text interaction the target site understands.

The site has no turn structure, so a conversation is flattened into
role-prefixed blocks:

	system: be brief

	user: hello

	assistant:

Replies come back as HTML, JSON or plain text. ParseReply locates the reply
region, strips site chrome and returns the assistant text.

EmulateStream is a compatibility shim: the reply is already complete when it
is split into word fragments and paced out as delta chunks. It is not token
streaming from a model.

Usage figures are word counts doubled. They are informational only.
*/
package translator
