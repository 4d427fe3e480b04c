//go:build integration

package trustregistry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxchange/internal/sentinel"
	"rxchange/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	rc := containers.GetManager().GetRedis(s.T())
	client := rc.NewClient(s.T())
	s.Require().NoError(rc.FlushAll(context.Background(), client))
	s.store = NewRedisStore(client, 200*time.Millisecond)
}

func (s *RedisStoreSuite) TestSaveAndFind() {
	status := &Status{
		IssuerDID: "did:web:clinic.example:dr-a",
		Trusted:   true,
		CheckedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(s.store.Save(context.Background(), status))

	found, err := s.store.Find(context.Background(), status.IssuerDID)
	s.Require().NoError(err)
	s.True(found.Trusted)
	s.Equal(status.IssuerDID, found.IssuerDID)
}

func (s *RedisStoreSuite) TestMissingIssuer() {
	_, err := s.store.Find(context.Background(), "did:web:unknown.example:nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestStaleEntryExpires() {
	status := &Status{
		IssuerDID: "did:web:clinic.example:dr-b",
		Trusted:   true,
		CheckedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.store.Save(context.Background(), status))

	time.Sleep(300 * time.Millisecond)

	// A stale cache entry is indistinguishable from a missing one.
	_, err := s.store.Find(context.Background(), status.IssuerDID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
