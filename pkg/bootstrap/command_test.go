package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/config"
	"userbus/internal/logger"
)

const validYAML = `
broker:
  type: kafka
  kafka:
    brokers: ["kafka:9092"]
    group_id: subscriber
`

type fakeService struct {
	initErr  error
	ran      bool
	shutdown bool
}

func (s *fakeService) Initialize(context.Context) error { return s.initErr }

func (s *fakeService) Run(context.Context) error {
	s.ran = true
	return nil
}

func (s *fakeService) Shutdown(context.Context) error {
	s.shutdown = true
	return nil
}

func newTestCommand(svc *fakeService) CommandSpec {
	return CommandSpec{
		Name: "test-service",
		New:  func(*config.Config, logger.Logger) Service { return svc },
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))
	return path
}

func TestRootCommand_Validate(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cmd := NewRootCommand(newTestCommand(&fakeService{}))
	cmd.SetArgs([]string{"validate"})
	assert.ErrorIs(t, cmd.Execute(), errConfigRequired)

	cmd = NewRootCommand(newTestCommand(&fakeService{}))
	cmd.SetArgs([]string{"validate", "--config", writeConfig(t)})
	assert.NoError(t, cmd.Execute())
}

func TestRootCommand_Serve(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t))

	svc := &fakeService{}
	cmd := NewRootCommand(newTestCommand(svc))
	cmd.SetArgs([]string{"serve"})
	require.NoError(t, cmd.Execute())
	assert.True(t, svc.ran)

	boom := errors.New("boom")
	failing := &fakeService{initErr: boom}
	cmd = NewRootCommand(newTestCommand(failing))
	cmd.SetArgs([]string{})
	assert.ErrorIs(t, cmd.Execute(), boom)
	assert.False(t, failing.ran)
	assert.True(t, failing.shutdown)
}
