package monitoring

import (
	"strconv"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// resultLabel maps an error to a bounded label value
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(chat.KindOf(err))
}

func boolLabel(b bool) string {
	return strconv.FormatBool(b)
}

// routeLabel keeps path cardinality bounded to registered routes
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unmatched"
	}
	return fullPath
}
