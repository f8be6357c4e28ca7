// Package utils holds process lifecycle helpers.
package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Quit blocks until SIGINT, SIGTERM or the end of ctx, then runs close.
func Quit(ctx context.Context, serviceName string, log logrus.FieldLogger, close func()) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Infof("Closing %s", serviceName)
	close()
}
