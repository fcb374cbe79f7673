/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	iris "github.com/btnmasher/iris"

	"github.com/sirupsen/logrus"
)

const (
	defaultIP   = "127.0.0.1"
	defaultPort = 6991
)

func main() {
	ip, port := parseArgs(os.Args[1:])

	mainContext, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	wg := conc.NewWaitGroup()
	defer wg.Wait()

	shutdownTimeout := 30 * time.Second
	logger := logrus.New()
	logger.SetLevel(logLevelFromEnv())

	server, cfgErr := iris.NewServer(
		iris.WithHostname("iris.example"),
		iris.WithLogger(logger),
		iris.WithDefaultLogFormatter(),
		iris.WithGracefulShutdown(mainContext, shutdownTimeout),
	)
	if cfgErr != nil {
		logger.Fatal(cfgErr)
	}

	wg.Go(func() {
		if err := server.ListenAndServe(ip, port); err != nil && !errors.Is(err, iris.ErrServerClosed) {
			logger.Fatal(fmt.Errorf("failed to start server: %w", err))
		}
	})

	log := logger.WithField("component", "main")
	killSignals := make(chan os.Signal, 1)
	signal.Notify(killSignals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-killSignals
	log.Infof("initializing server shutdown, received signal: %s", sig)
	shutdown()

	go func() {
		sig := <-killSignals
		log.Fatalf("forcefully shutting down server, received signal: %s", sig)
	}()
}

// parseArgs reads the positional ip_address/port arguments, restoring the
// CLI surface of the Rust original's clap-derived defaults (SPEC_FULL.md
// §6/§9) that the distilled spec.md did not carry over explicitly.
func parseArgs(args []string) (ip string, port int) {
	ip, port = defaultIP, defaultPort

	if len(args) > 0 && args[0] != "" {
		ip = args[0]
	}
	if len(args) > 1 {
		if p, err := strconv.Atoi(args[1]); err == nil {
			port = p
		}
	}
	return ip, port
}

// logLevelFromEnv reads LOG_LEVEL, generalizing the teacher's hardcoded
// logrus.DebugLevel in cmd/dircd/main.go into a configurable one.
func logLevelFromEnv() logrus.Level {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
