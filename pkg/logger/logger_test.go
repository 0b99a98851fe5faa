package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNamed_UsableBeforeInit(t *testing.T) {
	orig := Log
	Log = nil
	defer func() { Log = orig }()

	log := Named("component")

	require.NotNil(t, log)
	// Must not panic on an uninitialized global
	log.Info("hello")
	Debug("hello")
	Warn("hello")
	assert.NoError(t, Sync())
}

func TestInit_SetsGlobal(t *testing.T) {
	orig := Log
	defer func() { Log = orig }()

	err := Init(&Config{Level: "debug", Format: "json", Output: "stdout"})

	require.NoError(t, err)
	require.NotNil(t, Log)
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}
