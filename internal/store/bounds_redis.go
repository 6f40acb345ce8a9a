package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfimposer/internal/crop"
	"github.com/local/pdfimposer/internal/geom"
)

const notFound = "none"

// BoundsStore caches detected content bounds per document digest and analysis
// settings. One hash per (digest, settings); one field per page.
type BoundsStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBoundsStore(redisURL string, ttl time.Duration) (*BoundsStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &BoundsStore{client: c, ttl: ttl}, nil
}

func (s *BoundsStore) Close() error { return s.client.Close() }

func boundsKey(digest, settings string) string {
	return fmt.Sprintf("bounds:%s:%s", digest, settings)
}

// Get returns the cached bounds for page. ok is false on a miss.
func (s *BoundsStore) Get(ctx context.Context, digest, settings string, page int) (crop.Bounds, bool, error) {
	res, err := s.client.HGet(ctx, boundsKey(digest, settings), strconv.Itoa(page)).Result()
	if err == redis.Nil {
		return crop.Bounds{}, false, nil
	}
	if err != nil {
		return crop.Bounds{}, false, err
	}
	b, err := decodeBounds(res)
	if err != nil {
		return crop.Bounds{}, false, err
	}
	return b, true, nil
}

// Set stores the bounds for page and refreshes the hash expiry.
func (s *BoundsStore) Set(ctx context.Context, digest, settings string, page int, b crop.Bounds) error {
	key := boundsKey(digest, settings)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(page), encodeBounds(b))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func encodeBounds(b crop.Bounds) string {
	if !b.Found {
		return notFound
	}
	r := b.Rect
	return strings.Join([]string{
		strconv.FormatFloat(r.X0, 'g', -1, 64),
		strconv.FormatFloat(r.Y0, 'g', -1, 64),
		strconv.FormatFloat(r.X1, 'g', -1, 64),
		strconv.FormatFloat(r.Y1, 'g', -1, 64),
	}, ",")
}

func decodeBounds(s string) (crop.Bounds, error) {
	if s == notFound {
		return crop.NotFound, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return crop.Bounds{}, fmt.Errorf("malformed cached bounds %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return crop.Bounds{}, fmt.Errorf("malformed cached bounds %q: %w", s, err)
		}
		v[i] = f
	}
	return crop.Detected(geom.Rect{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}), nil
}
