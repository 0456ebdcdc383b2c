// Package log contains the logrus hooks used by the niiview host.
package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

// AsyncHook extends the logrus.Hook functionality
// handling logs in an asynchronous way until the context is done.
type AsyncHook interface {
	logrus.Hook
	Listen(ctx context.Context)
}
