package sandbox

import "time"

// Config defines sandbox configuration
type Config struct {
	Timeout       time.Duration // Execution timeout
	MaxCallStack  int           // Maximum JS call stack depth
	EnableConsole bool          // Allow console.log/warn/error
	UserAgent     string        // Exposed as navigator.userAgent
}

// Result holds execution result
type Result struct {
	Value      interface{}   // Completion value of the script
	Console    []LogEntry    // Console output
	DOMChanges []DOMChange   // Attribute writes made by the script
	Duration   time.Duration // Execution time
}

// LogEntry represents console output
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// DOMChange records an attribute written by a script
type DOMChange struct {
	Selector string
	Property string
	Value    string
}

// DefaultConfig returns limits suited to short page token scripts
func DefaultConfig() Config {
	return Config{
		Timeout:       2 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}
