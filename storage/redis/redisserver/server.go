// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package redisserver starts a redis server for testing.
package redisserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	fallbackAddr = "localhost:3780"
	fallbackPort = 3780
)

func freeport() (addr string, port int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fallbackAddr, fallbackPort
	}

	addr = listener.Addr().String()
	port = listener.Addr().(*net.TCPAddr).Port

	_ = listener.Close()
	return addr, port
}

// Start starts a redis-server when available, otherwise falls back to
// miniredis.
func Start() (addr string, cleanup func(), err error) {
	addr, cleanup, err = Process()
	if err != nil {
		return Mini()
	}
	return addr, cleanup, err
}

// Process starts a redis-server test process.
func Process() (addr string, cleanup func(), err error) {
	tmpdir, err := os.MkdirTemp("", "tempora-redis")
	if err != nil {
		return "", nil, err
	}

	var port int
	addr, port = freeport()

	// redis-server reads settings from a configuration file
	confpath := filepath.Join(tmpdir, "test.conf")
	arguments := []string{
		"daemonize no",
		"port " + strconv.Itoa(port),
		"timeout 0",
		"databases 4",
		"dbfilename dump.rdb",
		"dir " + tmpdir,
	}
	conf := strings.Join(arguments, "\n") + "\n"
	if err := os.WriteFile(confpath, []byte(conf), 0755); err != nil {
		return "", nil, err
	}

	cmd := exec.Command("redis-server", confpath)
	var redisout bytes.Buffer
	cmd.Stdout = &redisout
	if err := cmd.Start(); err != nil {
		return "", nil, err
	}

	cleanup = func() {
		_ = cmd.Process.Kill()
		_ = os.RemoveAll(tmpdir)
	}

	// wait for the line that looks like
	//   "The server is now ready to accept connections on port 6379"
	waitForReady := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(&redisout)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "now ready to accept") {
				break
			}
		}
		close(waitForReady)
		_, _ = io.Copy(io.Discard, &redisout)
	}()

	select {
	case <-waitForReady:
	case <-time.After(3 * time.Second):
		cleanup()
		return "", nil, errors.New("redis timeout")
	}

	if !pingServer(addr) {
		cleanup()
		return "", nil, errors.New("unable to ping")
	}

	return addr, cleanup, nil
}

func pingServer(addr string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer func() { _ = client.Close() }()
	return client.Ping(ctx).Err() == nil
}

// Mini starts a miniredis server.
func Mini() (addr string, cleanup func(), err error) {
	server, err := miniredis.Run()
	if err != nil {
		return "", nil, err
	}

	return server.Addr(), func() {
		server.Close()
	}, nil
}
