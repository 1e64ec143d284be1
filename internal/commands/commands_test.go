package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/okra-platform/breakiter/internal/config"
	"github.com/okra-platform/breakiter/internal/engine"
	"github.com/stretchr/testify/mock"
)

// Mock implementations shared by command tests
type mockConfigLoader struct {
	mock.Mock
}

func (m *mockConfigLoader) LoadConfig() (*config.Config, string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*config.Config), args.String(1), args.Error(2)
}

type mockEngineFactory struct {
	mock.Mock
}

func (m *mockEngineFactory) NewEngine(ctx context.Context, cfg *config.Config) (engine.Engine, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(engine.Engine), args.Error(1)
}

type mockSignalNotifier struct {
	mock.Mock
}

func (m *mockSignalNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) {
	m.Called(c, sig)
}

func (m *mockSignalNotifier) Stop(c chan<- os.Signal) {
	m.Called(c)
}

// bufferOutput collects printed output; safe for use from watcher goroutines
type bufferOutput struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (o *bufferOutput) Printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(&o.buf, format, args...)
}

func (o *bufferOutput) Println(args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(&o.buf, args...)
}

func (o *bufferOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}
