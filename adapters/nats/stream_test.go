package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	require.Equal(t, "eafes.events.acme.ticket.t-1", Subject(DefaultSubjectPrefix, "acme", "ticket", "t-1"))
	require.Equal(t, "p.a_b.ticket.x_y_z", Subject("p", "a.b", "ticket", "x.y*z"))
}

func TestFilterSubject(t *testing.T) {
	require.Equal(t, "p.*.*.*", FilterSubject("p", "", ""))
	require.Equal(t, "p.acme.*.*", FilterSubject("p", "acme", ""))
	require.Equal(t, "p.acme.ticket.*", FilterSubject("p", "acme", "ticket"))
	require.Equal(t, "p.*.ticket.*", FilterSubject("p", "", "ticket"))
}

func TestStreamConfig_Defaults(t *testing.T) {
	cfg := StreamConfig{Name: "tickets"}.withDefaults()
	require.Equal(t, "TICKETS", cfg.Name)
	require.Equal(t, DefaultSubjectPrefix, cfg.SubjectPrefix)
	require.Equal(t, 2*time.Minute, cfg.Duplicates)

	js := cfg.jetstream()
	require.Equal(t, []string{DefaultSubjectPrefix + ".>"}, js.Subjects)
	require.Equal(t, jetstream.LimitsPolicy, js.Retention)
}
