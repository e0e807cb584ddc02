// Command elektroid-bridged exposes a single locally attached device's
// transfer engine over TCP, announced on the local network via mDNS/DNS-SD
// so a companion app on another machine can find it without a configured
// address. The wire format on the TCP side is the same framed SysEx
// stream the device itself speaks; the daemon is a transparent relay, not
// a new protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/brutella/dnssd"
	"github.com/spf13/pflag"

	elektroid "github.com/lammas/elektroid/elektroid"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()

	cfg := elektroid.DefaultConfig()
	if *configPath != "" {
		loaded, err := elektroid.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}
	elektroid.SetLogLevel(cfg.LogLevel)

	if !cfg.Bridge.Enabled {
		fmt.Fprintln(os.Stderr, "bridge: disabled in config")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Bridge.Port))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ln.Close()

	responder, err := dnssd.NewResponder()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	service, err := dnssd.NewService(dnssd.Config{
		Name: cfg.Bridge.ServiceName,
		Type: "_elektroid-transfer._tcp",
		Port: cfg.Bridge.Port,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if _, err := responder.Add(service); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "dnssd responder stopped:", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		go serveConn(ctx, cfg, conn)
	}
}

// serveConn opens the configured device for the lifetime of one client
// connection and relays raw bytes in both directions, so the remote end
// sees exactly the framed SysEx stream a directly attached client would.
func serveConn(ctx context.Context, cfg elektroid.Config, conn net.Conn) {
	defer conn.Close()

	port, err := elektroid.OpenMIDIPort(cfg.DevNode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer port.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(port, conn)
	}()
	io.Copy(conn, port)
	<-done
}
