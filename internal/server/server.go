// Copyright (c) 2026 The gbforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server serves a directory of web build output over TLS.
package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gbforge/gbforge/internal/errs"
	"github.com/qiniu/x/log"
	"golang.org/x/net/http2"
)

const (
	DefaultAddr     = "0.0.0.0:4443"
	DefaultCertFile = "localhost.pem"
	DefaultKeyFile  = "localhost-key.pem"
)

// Config describes what to serve and how.
type Config struct {
	Root     string
	Addr     string
	CertFile string
	KeyFile  string
	// Isolation sends the cross-origin isolation headers threaded
	// WebAssembly needs for SharedArrayBuffer.
	Isolation bool
}

// DefaultConfig returns the configuration serving root on the fixed port
// with the well-known certificate files of the working directory.
func DefaultConfig(root string) Config {
	return Config{
		Root:      root,
		Addr:      DefaultAddr,
		CertFile:  DefaultCertFile,
		KeyFile:   DefaultKeyFile,
		Isolation: true,
	}
}

// Server is a static file server. It holds no mutable state once built.
type Server struct {
	root       string
	isolation  bool
	httpServer *http.Server
}

// New validates cfg and loads the key pair. Any problem is reported as a
// ConfigurationError before a socket is opened.
func New(cfg Config) (*Server, error) {
	if cfg.Root == "" {
		return nil, errs.Configf("root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return nil, &errs.ConfigurationError{What: "root directory " + cfg.Root, Err: err}
	}
	if fi, err := os.Stat(root); err != nil {
		return nil, &errs.ConfigurationError{What: "root directory " + cfg.Root, Err: err}
	} else if !fi.IsDir() {
		return nil, errs.Configf("root %s is not a directory", cfg.Root)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, &errs.ConfigurationError{What: fmt.Sprintf("certificate %s / key %s", cfg.CertFile, cfg.KeyFile), Err: err}
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{root: root, isolation: cfg.Isolation}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		TLSConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		},
	}
	if err := http2.ConfigureServer(s.httpServer, &http2.Server{}); err != nil {
		return nil, &errs.ConfigurationError{What: "http2", Err: err}
	}
	return s, nil
}

// Root returns the resolved document root.
func (s *Server) Root() string { return s.root }

// Addr returns the address ListenAndServe binds.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Serve accepts TLS connections on l, each served on its own goroutine,
// until l fails.
func (s *Server) Serve(l net.Listener) error {
	log.Infof("serving %s on https://%s", s.root, l.Addr())
	if err := s.httpServer.ServeTLS(l, "", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds the configured address and serves until the
// process ends.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}
