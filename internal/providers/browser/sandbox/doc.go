/*
Package sandbox evaluates page scripts in isolated goja runtimes.

Target sites often compute an anti-automation token in an inline script. The
browser driver hands that script and a DOM proxy of the fetched page to a
sandbox and keeps the completion value.

Each runtime has:

  - an execution timeout enforced with VM interrupts
  - a bounded call stack
  - no require, process, fetch or XMLHttpRequest
  - document, location, navigator, btoa and atob
  - timers that never fire

Runtimes are pooled and reset after every script so no state leaks between
sessions.

# Usage Example

	pool, _ := sandbox.NewPool(sandbox.DefaultConfig(), 4)
	dom := sandbox.NewDOM(doc, pageURL)
	result, err := pool.Execute(ctx, script, dom)
*/
package sandbox
