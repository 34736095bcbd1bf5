package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartup_StartsDependenciesInDependencyOrder(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s := NewStartup(logger, 1)

	var started []string
	var stopped []string
	record := func(name string) *Func {
		return &Func{
			Name:    name,
			OnStart: func(ctx context.Context) error { started = append(started, name); return nil },
			OnStop:  func(ctx context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	kafka := record("kafka")
	kafka.Requires = []string{"database"}
	s.AddDependency(kafka)
	s.AddDependency(record("database"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "kafka"}, started)
	assert.Equal(t, StartupStatusStarted, s.Status("kafka"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"kafka", "database"}, stopped)
}

func TestStartup_FailsAfterMaxAttempts(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s := NewStartup(logger, 1)

	s.AddDependency(&Func{
		Name:    "database",
		OnStart: func(ctx context.Context) error { return errors.New("connection refused") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StartupStatusFailed, s.Status("database"))
}

func TestStartup_UnknownRequirement(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s := NewStartup(logger, 1)
	s.AddDependency(&Func{Name: "graph", Requires: []string{"missing"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency 'missing'")
}
