package translator

import (
	"fmt"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// DefaultStreamInterval paces emulated stream fragments
	DefaultStreamInterval = 100 * time.Millisecond

	// MaxReplySize bounds the raw reply accepted from the site
	MaxReplySize = 10 * 1024 * 1024
)

// Options describe how replies are located and how streams are paced
type Options struct {
	// Region selects the reply element: CSS, or XPath when it starts with "/"
	Region string
	// Chrome selectors are removed from the region before text extraction
	Chrome []string
	// Strip patterns are removed from the extracted text
	Strip []string
	// JSONField is a dot path to the reply in JSON payloads
	JSONField string
	// StreamInterval is the delay between emulated fragments. Negative disables pacing.
	StreamInterval time.Duration
}

// Translator maps requests to site scripts and site output back to replies.
// It is safe for concurrent use.
type Translator struct {
	region    string
	chrome    []string
	strip     []*regexp.Regexp
	jsonPath  []interface{}
	interval  time.Duration
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// New compiles the reply rules
func New(opts Options) (*Translator, error) {
	t := &Translator{
		region:    opts.Region,
		chrome:    opts.Chrome,
		jsonPath:  jsonPath(opts.JSONField),
		interval:  opts.StreamInterval,
		sanitizer: bluemonday.UGCPolicy(),
		now:       time.Now,
	}
	if t.region == "" {
		t.region = "body"
	}
	switch {
	case t.interval == 0:
		t.interval = DefaultStreamInterval
	case t.interval < 0:
		t.interval = 0
	}

	for _, pattern := range opts.Strip {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("strip pattern %q: %w", pattern, err)
		}
		t.strip = append(t.strip, re)
	}
	return t, nil
}

// Interval returns the emulated stream pacing
func (t *Translator) Interval() time.Duration {
	return t.interval
}
