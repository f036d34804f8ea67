// Package arbiter decides which role a process plays on the shared
// coordination endpoint. Exactly one process can bind the loopback port; it
// becomes the Leader and owns the registry. Everyone else finds the port
// occupied and becomes a Follower that relays through the Leader. Losing the
// bind race is a role assignment, not an error.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
)

type Role int

const (
	// RoleNone means no role is held: before the first arbitration, after
	// Stop, or after a failed rebind.
	RoleNone Role = iota
	RoleLeader
	RoleFollower
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	default:
		return "none"
	}
}

// Runner is one started endpoint role. Start must not block; Stop must
// release every resource the role holds, including the bound listener for
// the leader role.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Config struct {
	Logger *slog.Logger

	// NewLeader builds the leader role around a freshly bound listener. The
	// runner takes ownership and must close it on Stop.
	NewLeader func(ln net.Listener) Runner

	// NewFollower builds the follower role polling the occupied port.
	NewFollower func(port int) Runner
}

type Arbitrator struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	role    Role
	port    int
	current Runner
}

func New(cfg Config) *Arbitrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbitrator{cfg: cfg, logger: logger}
}

// Start performs the initial arbitration on port.
func (a *Arbitrator) Start(ctx context.Context, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return fmt.Errorf("arbitrator already started")
	}
	return a.arbitrateLocked(ctx, port)
}

// Rebind stops the current role cleanly, then arbitrates again on the new
// port. On failure no role is held; the arbitrator is never left with a
// half-started role.
func (a *Arbitrator) Rebind(ctx context.Context, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		if err := a.current.Stop(ctx); err != nil {
			a.logger.Warn("stopping previous endpoint role failed", "role", a.role, "error", err)
		}
		a.current = nil
		a.role = RoleNone
	}
	return a.arbitrateLocked(ctx, port)
}

// Stop releases the current role, if any.
func (a *Arbitrator) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	err := a.current.Stop(ctx)
	a.current = nil
	a.role = RoleNone
	return err
}

func (a *Arbitrator) Role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

func (a *Arbitrator) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port
}

func (a *Arbitrator) arbitrateLocked(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	lc := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
		},
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	switch {
	case err == nil:
		runner := a.cfg.NewLeader(ln)
		if startErr := runner.Start(ctx); startErr != nil {
			_ = runner.Stop(ctx)
			return fmt.Errorf("start leader role: %w", startErr)
		}
		a.current = runner
		a.role = RoleLeader
		a.port = port
		a.logger.Info("endpoint arbitration complete", "role", RoleLeader, "addr", addr)
		return nil

	case IsAddrInUse(err):
		runner := a.cfg.NewFollower(port)
		if startErr := runner.Start(ctx); startErr != nil {
			_ = runner.Stop(ctx)
			return fmt.Errorf("start follower role: %w", startErr)
		}
		a.current = runner
		a.role = RoleFollower
		a.port = port
		a.logger.Info("endpoint arbitration complete", "role", RoleFollower, "addr", addr)
		return nil

	default:
		return fmt.Errorf("bind %s: %w", addr, err)
	}
}

// IsAddrInUse reports whether err is the bind conflict that signals another
// instance already leads this endpoint.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EADDRINUSE
		}
	}
	return strings.Contains(err.Error(), "address already in use")
}
