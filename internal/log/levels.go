package log

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// parseLevels turns the level option of a log output into the levels it
// receives: the named one and every more severe one.
func parseLevels(level string) ([]logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q, use one of panic, fatal, error, warn, info, debug, trace", level)
	}
	return slices.DeleteFunc(slices.Clone(logrus.AllLevels), func(l logrus.Level) bool {
		return l > lvl
	}), nil
}
