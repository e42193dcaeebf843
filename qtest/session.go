// =============================================================================
// session.go - Listener, Lock, QEMU and Attach
// =============================================================================
//
// Every subcommand that talks to QEMU goes through the same steps:
//   1. Take a lock on "<socket>.lock" (Unix transport only) so a second
//      qtest instance can't delete the socket of a live one.
//   2. Create the engine, which binds the listener.
//   3. Optionally launch QEMU pointed at the listener.
//   4. Wait for QEMU to connect.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gofrs/flock"

	"github.com/qtest/qtest-go/internal/config"
	"github.com/qtest/qtest-go/qtestprotocol"
)

// session is an attached qtest connection plus the resources backing it.
type session struct {
	engine *qtestprotocol.Engine
	lock   *flock.Flock
	qemu   *exec.Cmd
	logger *slog.Logger
}

// acquireSocketLock takes an exclusive, non-blocking lock next to the socket
// path.
//
// GO CONCEPT: Advisory File Locks
// -------------------------------
// flock(2) locks are advisory: they only stop other processes that also ask
// for the lock. The lock is released automatically when the process exits,
// even on a crash, so a stale ".lock" file never blocks a later run.
//
// Compare with Python: `fcntl.flock(fd, fcntl.LOCK_EX | fcntl.LOCK_NB)`
// is the same system call.
func acquireSocketLock(socketPath string) (*flock.Flock, error) {
	lock := flock.New(socketPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another qtest instance is already listening on %s", socketPath)
	}
	return lock, nil
}

// openSession binds the listener described by cfg and waits for QEMU.
// status receives progress messages meant for the user.
func openSession(ctx context.Context, cfg *config.Config, launch bool, logger *slog.Logger, status io.Writer) (*session, error) {
	factory, err := transportFactory(cfg.Transport.Kind)
	if err != nil {
		return nil, err
	}

	s := &session{logger: logger}

	if cfg.Transport.Kind == config.TransportUnix {
		if s.lock, err = acquireSocketLock(cfg.Transport.Address); err != nil {
			return nil, err
		}
	}

	s.engine, err = qtestprotocol.NewEngine(factory, cfg.Transport.Address, qtestprotocol.WithLogger(logger))
	if err != nil {
		s.Close()
		return nil, err
	}

	address := s.engine.Address()
	if launch {
		args := qemuArgs(cfg.QEMU.Args, cfg.Transport.Kind, address)
		logger.Info("launching qemu", "binary", cfg.QEMU.Binary, "args", args)
		if s.qemu, err = startQEMU(ctx, cfg.QEMU.Binary, args, os.Stderr); err != nil {
			s.Close()
			return nil, err
		}
		fmt.Fprintf(status, "%s started (PID: %d)\n", cfg.QEMU.Binary, s.qemu.Process.Pid)
	} else {
		fmt.Fprintf(status, "Waiting for QEMU: -qtest %s\n", qtestChardev(cfg.Transport.Kind, address))
	}

	if err := s.engine.AttachConnection(ctx); err != nil {
		s.Close()
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("waiting for QEMU: %w", err)
	}
	return s, nil
}

// Close tears the session down in reverse order. It is safe to call on a
// partially opened session.
func (s *session) Close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("close transport", "error", err)
		}
	}
	stopQEMU(s.qemu)
	if s.lock != nil {
		// The lock file stays in place. Unlinking it would let a waiting
		// instance lock the old inode while another locks a new file.
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("release lock", "error", err)
		}
	}
}
