/************************************************************************************
 *
 * wireclient, a Go core for a chat-platform REST + gateway client
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package wireclient

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract threaded through every component. It is
// satisfied by *logrus.Logger and *logrus.Entry directly, so callers can
// pass in their own configured logger (JSON formatter, a Sentry hook, a
// different output) without wireclient needing its own logger interface.
type Logger = logrus.FieldLogger

// NewLogger builds the package default: a text-formatted logger writing to
// stdout at info level.
func NewLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// NewDebugLogger builds a default logger at debug level, used by
// constructors (e.g. the REST dispatcher) that default to verbose logging.
func NewDebugLogger() Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}
