package nats

import (
	"context"
	"os"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerTestsEnv enables tests that start docker containers.
const ContainerTestsEnv = "EAFES_CONTAINER_TESTS"

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Cleanup(func())
}

// NewTestContainer starts a JetStream enabled NATS server. The test is
// skipped unless container tests are enabled.
func NewTestContainer(t Testing) Connector {
	if os.Getenv(ContainerTestsEnv) != "1" {
		t.Skipf("set %s=1 to run nats tests", ContainerTestsEnv)
	}
	ctx := t.Context()
	natsC, err := testcontainers.Run(
		ctx, "nats:2.11-alpine",
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	endpoint, err := natsC.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("nats endpoint: %s", endpoint)
	return ConnectURL(endpoint)
}
