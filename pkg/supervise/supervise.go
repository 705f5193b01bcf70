// Package supervise manages the lifetime of spawned component
// processes: starting them with the environment a hosted component
// expects, tracking them for the shutdown broadcast, and reaping them
// on exit.
package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/ccanvas/ccanvas/pkg/log"
)

// ComponentEnvVar is exported into every spawned child so it can tell
// it is running as a hosted component rather than standalone.
const ComponentEnvVar = "CCANVAS_COMPONENT=1"

// SockEnvVar carries the master socket path to spawned children.
const SockEnvVar = "CCANVAS_SOCK"

// Spec describes one child process to spawn.
type Spec struct {
	ID      uint64
	Label   string
	Command string
	Args    []string
	Dir     string
}

// Supervisor tracks every live spawned process.
type Supervisor struct {
	masterSockPath string

	mu    sync.Mutex
	procs map[uint64]*exec.Cmd
}

// New builds a Supervisor that exports masterSockPath to every child.
func New(masterSockPath string) *Supervisor {
	return &Supervisor{masterSockPath: masterSockPath, procs: make(map[uint64]*exec.Cmd)}
}

// Spawn starts spec's command, inheriting the broker's stdio (it shares
// the terminal with its host) and exporting CCANVAS_COMPONENT=1 and
// CCANVAS_SOCK so the child can dial the master socket.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec) error {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), ComponentEnvVar, fmt.Sprintf("%s=%s", SockEnvVar, s.masterSockPath))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervise: spawn %q: %w", spec.Command, err)
	}

	s.mu.Lock()
	s.procs[spec.ID] = cmd
	s.mu.Unlock()

	logger := log.WithComponent("supervise")
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		delete(s.procs, spec.ID)
		s.mu.Unlock()
		if err != nil {
			logger.Warn().Uint64("id", spec.ID).Err(err).Msg("child process exited with error")
		} else {
			logger.Info().Uint64("id", spec.ID).Msg("child process exited")
		}
	}()
	return nil
}

// Signal kills id's process (os.Process.Kill), if still running.
func (s *Supervisor) Signal(id uint64) error {
	s.mu.Lock()
	cmd, ok := s.procs[id]
	s.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// ShutdownAll terminates every tracked process. Called once the
// broker has broadcast Terminate to every connection's client socket.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Signal(id)
	}
}

// Count reports how many processes are currently tracked.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}
