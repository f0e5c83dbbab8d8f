package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// cachedProductRepo puts a Redis cache-aside layer in front of the MySQL
// repo for reads by id. Cache lookups run behind a circuit breaker so a sick
// Redis does not drag every catalog read down with it, and misses collapse
// through singleflight before hitting MySQL. Writes invalidate by deleting
// the key.
type cachedProductRepo struct {
	next ProductRepository
	rdb  *redis.Client
	sf   singleflight.Group
	cb   *gobreaker.CircuitBreaker
	log  *logrus.Logger
}

func NewCachedProductRepo(next ProductRepository, rdb *redis.Client, log *logrus.Logger) ProductRepository {
	st := gobreaker.Settings{
		Name:        "ProductCacheBreaker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &cachedProductRepo{
		next: next,
		rdb:  rdb,
		cb:   gobreaker.NewCircuitBreaker(st),
		log:  log,
	}
}

func productCacheKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func (c *cachedProductRepo) Get(ctx context.Context, id string) (*model.Product, error) {
	key := productCacheKey(id)

	val, err := c.cb.Execute(func() (interface{}, error) {
		res, err := c.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		// Breaker open or Redis down: serve from MySQL rather than failing.
		c.log.Warnf("[GetProduct] cache unavailable, falling back to mysql: %v", err)
		return c.next.Get(ctx, id)
	}

	if val != nil {
		var product model.Product
		if err := json.Unmarshal([]byte(val.(string)), &product); err == nil {
			return &product, nil
		}
		c.log.Errorf("[GetProduct] failed to unmarshal cached product %s: %v", key, err)
	}

	result, err, shared := c.sf.Do(key, func() (interface{}, error) {
		product, err := c.next.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		data, _ := json.Marshal(product)
		ttl := 10*time.Minute + time.Duration(rand.Intn(60))*time.Second
		if err := c.rdb.Set(ctx, key, string(data), ttl).Err(); err != nil {
			c.log.Errorf("[GetProduct] failed to write cache for key %s: %v", key, err)
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debugf("shared cache fill for product %s", id)
	}
	return result.(*model.Product), nil
}

func (c *cachedProductRepo) Update(ctx context.Context, product *model.Product) error {
	if err := c.next.Update(ctx, product); err != nil {
		return err
	}
	c.invalidate(ctx, product.ID)
	return nil
}

func (c *cachedProductRepo) Delete(ctx context.Context, id string) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *cachedProductRepo) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, productCacheKey(id)).Err(); err != nil {
		c.log.Warnf("%s", errors.Wrapf(err, "failed to invalidate cache for product %s", id).Error())
	}
}

func (c *cachedProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	return c.next.List(ctx)
}

func (c *cachedProductRepo) ListPage(ctx context.Context, page, limit int) ([]*model.Product, int64, error) {
	return c.next.ListPage(ctx, page, limit)
}

func (c *cachedProductRepo) GetByName(ctx context.Context, name string) (*model.Product, error) {
	return c.next.GetByName(ctx, name)
}

func (c *cachedProductRepo) Search(ctx context.Context, query string) ([]*model.Product, error) {
	return c.next.Search(ctx, query)
}

func (c *cachedProductRepo) Create(ctx context.Context, product *model.Product) error {
	return c.next.Create(ctx, product)
}
