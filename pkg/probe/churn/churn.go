// Package churn creates and immediately releases network-channel handles
// so that a probe run exercises the channel library's construction and
// teardown path once per iteration.
package churn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrInvalidPort is returned when an iteration maps outside the TCP port range.
var ErrInvalidPort = errors.New("port out of range")

// Factory opens an opaque channel handle to target. Nothing is called on
// the handle besides Close.
type Factory interface {
	Open(target string) (io.Closer, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(target string) (io.Closer, error)

// Open calls f.
func (f FactoryFunc) Open(target string) (io.Closer, error) {
	return f(target)
}

// GRPC builds insecure gRPC client channels. grpc.NewClient does not dial;
// the channel stays idle until Close.
type GRPC struct {
	// Options are appended after the insecure transport credentials.
	Options []grpc.DialOption
}

// Open creates a client channel to target.
func (g GRPC) Open(target string) (io.Closer, error) {
	opts := make([]grpc.DialOption, 0, len(g.Options)+1)
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	opts = append(opts, g.Options...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating channel to %s: %w", target, err)
	}
	return conn, nil
}

// Address returns host:port for the 1-based iteration, where iteration 1
// uses basePort.
func Address(host string, basePort, iteration int) (string, error) {
	port := basePort + iteration - 1
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// Cycle opens a handle to target and closes it before returning.
func Cycle(f Factory, target string) error {
	h, err := f.Open(target)
	if err != nil {
		return err
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("closing channel to %s: %w", target, err)
	}
	return nil
}
