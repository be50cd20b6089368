package mail

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Denylist answers whether an address is blocked from receiving mail.
type Denylist interface {
	Denylisted(ctx context.Context, email string) (bool, error)
}

// RedisDenylist checks membership of a shared redis set, so the block list
// can be edited without redeploying.
type RedisDenylist struct {
	client *redis.Client
	key    string
}

func NewRedisDenylist(client *redis.Client, key string) *RedisDenylist {
	return &RedisDenylist{client: client, key: key}
}

func (d *RedisDenylist) Denylisted(ctx context.Context, email string) (bool, error) {
	return d.client.SIsMember(ctx, d.key, strings.ToLower(email)).Result()
}

// StaticDenylist is the fallback when redis is not configured.
type StaticDenylist struct {
	blocked map[string]struct{}
}

func NewStaticDenylist(emails []string) *StaticDenylist {
	blocked := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		blocked[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	return &StaticDenylist{blocked: blocked}
}

func (d *StaticDenylist) Denylisted(_ context.Context, email string) (bool, error) {
	_, ok := d.blocked[strings.ToLower(email)]
	return ok, nil
}
