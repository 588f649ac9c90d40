package redisstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/firewatch/internal/domain"
)

// keyspace names every Redis key belonging to one logical stream.
type keyspace string

func (k keyspace) subject(s domain.Subject) string { return string(k) + ":" + string(s) }

func (k keyspace) subjectOf(key string) domain.Subject {
	return domain.Subject(strings.TrimPrefix(key, string(k)+":"))
}

func (k keyspace) meta() string                   { return string(k) + ":meta" }
func (k keyspace) consumers() string              { return string(k) + ":consumers" }
func (k keyspace) consumer(durable string) string { return string(k) + ":consumer:" + durable }
func (k keyspace) deadLetter() string             { return string(k) + ":deadletter" }

func joinSubjects(subjects []domain.Subject) string {
	parts := make([]string, len(subjects))
	for i, s := range subjects {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitSubjects(s string) []domain.Subject {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.Subject, len(parts))
	for i, p := range parts {
		out[i] = domain.Subject(p)
	}
	return out
}

// minID is the smallest entry id retained when entries older than maxAge are evicted.
func minID(now time.Time, maxAge time.Duration) string {
	return fmt.Sprintf("%d-0", now.Add(-maxAge).UnixMilli())
}

// nextID returns the smallest entry id greater than id.
func nextID(id string) string {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return id + "-1"
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "+"
	}
	return ms + "-" + strconv.FormatUint(n+1, 10)
}
