/*
Package browser drives the target chat site as an automated browsing context.

# Overview

Each pooled session owns one Driver. A Driver behaves like a fresh browser
tab: it has its own cookie jar, a random client identifier and the
anti-automation token the site renders into its home page.

# Lifecycle

 1. Warm loads the home page, decodes it (declared charset, meta tag or
    detection) and parses it with goquery
 2. The session token is read from an input or computed by evaluating the
    page's inline token script in the goja sandbox against a DOM proxy
 3. Interact posts the prompt form (prompt, model, token, client id and the
    page's hidden inputs) to the chat endpoint and returns the raw reply
 4. Teardown forgets the identity so the next Warm starts over

Prompts are POSTed exactly once. Only idempotent page loads are retried.

# Errors

Site failures surface as chat.KindUnavailable so the pool counts them
against the session. Context errors pass through untouched.

# Usage

	scripts, _ := sandbox.NewPool(sandbox.DefaultConfig(), 4)
	factory := browser.NewFactory(browser.Options{
		Profile: profile,
		Breaker: siteBreaker,
		Scripts: scripts,
		Logger:  logger,
	})
	p := pool.New(pool.DefaultConfig(), factory, logger)
*/
package browser
