package daemon

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanward/scanward/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.ResultsDir = t.TempDir()
	cfg.Daemon.PIDFile = filepath.Join(t.TempDir(), "scanward.pid")
	cfg.Daemon.WorkDir = ""
	cfg.Daemon.ShutdownTimeout = 5 * time.Second
	cfg.API.Enabled = false
	cfg.Schedules.Enabled = false
	cfg.Archive.Enabled = false
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestDaemonStartStop(t *testing.T) {
	d := New(testConfig(t))

	done := make(chan error, 1)
	go func() {
		done <- d.Start()
	}()

	require.Eventually(t, func() bool {
		return d.IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.IsRunning())
}

func TestDaemonWritesAndRemovesPIDFile(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg)

	done := make(chan error, 1)
	go func() {
		done <- d.Start()
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.Daemon.PIDFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(cfg.Daemon.PIDFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, d.Stop())
	<-done

	_, err = os.Stat(cfg.Daemon.PIDFile)
	assert.True(t, os.IsNotExist(err), "PID file should be removed on shutdown")
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testConfig(t)

	// Simulate a live daemon holding the PID file.
	require.NoError(t, os.WriteFile(cfg.Daemon.PIDFile,
		[]byte(strconv.Itoa(os.Getpid())), 0o600))

	d := New(cfg)
	err := d.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestDaemonClearsStalePIDFile(t *testing.T) {
	cfg := testConfig(t)

	// A PID that cannot belong to a live process.
	require.NoError(t, os.WriteFile(cfg.Daemon.PIDFile,
		[]byte("999999999"), 0o600))

	d := New(cfg)
	done := make(chan error, 1)
	go func() {
		done <- d.Start()
	}()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Daemon.PIDFile)
		return err == nil && string(data) == strconv.Itoa(os.Getpid())
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop())
	<-done
}

func TestDaemonRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scanning.TargetNetwork = "not-a-network"

	d := New(cfg)
	err := d.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestDaemonWithSchedulerAndAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = true
	cfg.API.ListenAddr = "127.0.0.1"
	cfg.API.Port = freePort(t)
	cfg.Schedules.Enabled = true

	d := New(cfg)
	done := make(chan error, 1)
	go func() {
		done <- d.Start()
	}()

	require.Eventually(t, func() bool {
		return d.IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, d.Stop())
	<-done
}
