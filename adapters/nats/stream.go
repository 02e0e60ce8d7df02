package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultSubjectPrefix = "eafes.events"
	DefaultStreamName    = "EAFES_EVENTS"

	headerEventType = "x-event-type"
	headerTenantID  = "x-tenant-id"
	headerAggType   = "x-aggregate-type"
	headerAggID     = "x-aggregate-id"
)

// StreamConfig describes the JetStream stream that receives published events.
type StreamConfig struct {
	Name          string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	// Duplicates is the window in which a re-published event id is dropped.
	Duplicates time.Duration `mapstructure:"duplicates"`
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Name == "" {
		c.Name = DefaultStreamName
	}
	c.Name = strings.ToUpper(c.Name)
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Duplicates == 0 {
		c.Duplicates = 2 * time.Minute
	}
	return c
}

func (c StreamConfig) jetstream() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       c.Name,
		Subjects:   []string{c.SubjectPrefix + ".>"},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     c.MaxAge,
		Duplicates: c.Duplicates,
	}
}

func ensureStream(js jetstream.JetStream, cfg jetstream.StreamConfig) (s jetstream.Stream, si *jetstream.StreamInfo, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err = js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	si, err = s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

// subjectToken replaces characters NATS treats as separators or wildcards.
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Subject is the subject an event of the given stream is published on:
// <prefix>.<tenant>.<aggregate type>.<aggregate id>.
func Subject(prefix, tenantID, aggType, aggID string) string {
	return prefix + "." + subjectToken(tenantID) + "." + subjectToken(aggType) + "." + subjectToken(aggID)
}

// FilterSubject matches the events of one tenant and optionally one aggregate
// type. Empty values match everything.
func FilterSubject(prefix, tenantID, aggType string) string {
	t, a := "*", "*"
	if tenantID != "" {
		t = subjectToken(tenantID)
	}
	if aggType != "" {
		a = subjectToken(aggType)
	}
	return prefix + "." + t + "." + a + ".*"
}
