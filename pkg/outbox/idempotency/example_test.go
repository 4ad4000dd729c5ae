package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleStore struct {
	keys map[string]struct{}
}

func (s *exampleStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *exampleStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "fin:idempotency:" + scope + ":" + id
}

func ExampleGuard_Claim() {
	ctx := context.Background()
	guard, _ := NewGuard(&exampleStore{keys: map[string]struct{}{}}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		delivered, _ := guard.Claim(ctx, "redis", eventID)
		if delivered {
			fmt.Println("skip: already published")
			continue
		}
		fmt.Println("publish")
	}
	// Output:
	// publish
	// skip: already published
}
