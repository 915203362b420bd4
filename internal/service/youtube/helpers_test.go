package youtube

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockCmdRunner is a mock implementation of CmdRunner for testing
type mockCmdRunner struct {
	mock.Mock
}

func (m *mockCmdRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	arguments := m.Called(ctx, name, args)
	var out []byte
	if v := arguments.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, arguments.Error(1)
}

func (m *mockCmdRunner) LookPath(file string) (string, error) {
	arguments := m.Called(file)
	return arguments.String(0), arguments.Error(1)
}
