package utils

import (
	"slices"

	"github.com/nats-io/nats.go"
)

// StreamConfigEqual compares two NATS stream configurations for equality
// Focuses on core properties only; subject order is ignored
func StreamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name &&
		a.Retention == b.Retention &&
		a.MaxMsgs == b.MaxMsgs &&
		a.MaxAge == b.MaxAge &&
		a.Storage == b.Storage &&
		sameSubjects(a.Subjects, b.Subjects)
}

// ConsumerConfigEqual compares two NATS consumer configurations for equality
// Focuses on core properties only. A single FilterSubjects entry equals the
// same FilterSubject, which is how the server reports it back.
func ConsumerConfigEqual(a, b nats.ConsumerConfig) bool {
	return a.Durable == b.Durable &&
		a.AckPolicy == b.AckPolicy &&
		a.DeliverGroup == b.DeliverGroup &&
		a.MaxDeliver == b.MaxDeliver &&
		sameSubjects(filterSubjects(a), filterSubjects(b))
}

func filterSubjects(c nats.ConsumerConfig) []string {
	subjects := slices.Clone(c.FilterSubjects)
	if c.FilterSubject != "" {
		subjects = append(subjects, c.FilterSubject)
	}
	return subjects
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
