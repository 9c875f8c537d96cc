package sandbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

var ErrInterrupted = errors.New("script interrupted")

// Runtime wraps goja VM with security controls
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	r := &Runtime{config: config}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs a script against dom and returns its completion value. The
// script is interrupted when the timeout elapses or ctx ends.
func (r *Runtime) Execute(ctx context.Context, script string, dom *DOM) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, errors.New("runtime closed")
	}

	start := time.Now()
	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()

	if dom != nil {
		r.injectDOM(dom)
	} else {
		r.vm.Set("document", goja.Undefined())
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()
	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	val, err := r.vm.RunString(script)
	close(done)
	<-exited
	r.vm.ClearInterrupt()

	result := &Result{Duration: time.Since(start)}
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return result, fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
		}
		return result, err
	}

	result.Value = exportValue(val)
	r.consoleMu.Lock()
	result.Console = append([]LogEntry(nil), r.console...)
	r.consoleMu.Unlock()
	if dom != nil {
		result.DOMChanges = dom.Changes()
	}
	return result, nil
}

func (r *Runtime) reset() error {
	r.vm = goja.New()
	r.vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if r.config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.console = nil
	return r.setupGlobals()
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports", "fetch", "XMLHttpRequest"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			console.Set(level, r.makeConsoleFunc(level))
		}
		r.vm.Set("console", console)
	}

	// Timers never fire; scripts that defer work produce no value.
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	r.vm.Set("setTimeout", noop)
	r.vm.Set("setInterval", noop)
	r.vm.Set("clearTimeout", noop)
	r.vm.Set("clearInterval", noop)

	r.vm.Set("btoa", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	})
	r.vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		out, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(r.vm.NewTypeError("atob: invalid base64"))
		}
		return r.vm.ToValue(string(out))
	})

	navigator := r.vm.NewObject()
	navigator.Set("userAgent", r.config.UserAgent)
	navigator.Set("webdriver", false)
	r.vm.Set("navigator", navigator)

	return r.vm.Set("window", r.vm.GlobalObject())
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()
		return goja.Undefined()
	}
}

// injectDOM exposes document and location backed by dom
func (r *Runtime) injectDOM(dom *DOM) {
	document := r.vm.NewObject()
	document.Set("title", dom.Title())

	first := func(selector string) goja.Value {
		els := dom.Query(selector)
		if len(els) == 0 {
			return goja.Null()
		}
		return r.vm.ToValue(r.elementProxy(els[0]))
	}
	all := func(selector string) goja.Value {
		els := dom.Query(selector)
		out := make([]interface{}, len(els))
		for i, el := range els {
			out[i] = r.elementProxy(el)
		}
		return r.vm.ToValue(out)
	}

	document.Set("querySelector", first)
	document.Set("querySelectorAll", all)
	document.Set("getElementById", func(id string) goja.Value {
		return first(fmt.Sprintf("[id=%q]", id))
	})
	document.Set("getElementsByClassName", func(class string) goja.Value {
		return all("." + class)
	})
	document.Set("getElementsByTagName", all)
	r.vm.Set("document", document)

	u := dom.URL()
	location := r.vm.NewObject()
	location.Set("href", u.String())
	location.Set("host", u.Host)
	location.Set("hostname", u.Hostname())
	location.Set("pathname", u.Path)
	location.Set("protocol", u.Scheme+":")
	r.vm.Set("location", location)
}

func (r *Runtime) elementProxy(el *Element) map[string]interface{} {
	return map[string]interface{}{
		"tagName":      el.TagName(),
		"id":           el.GetAttribute("id"),
		"className":    el.GetAttribute("class"),
		"value":        el.GetAttribute("value"),
		"textContent":  el.TextContent(),
		"innerText":    strings.TrimSpace(el.TextContent()),
		"innerHTML":    el.InnerHTML(),
		"getAttribute": el.GetAttribute,
		"setAttribute": el.SetAttribute,
	}
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Reset replaces the VM so no state leaks between scripts
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}
