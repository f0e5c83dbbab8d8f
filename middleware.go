// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/service"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local info = redis.call("HMGET", key, "tokens", "last_refill")
	local tokens = tonumber(info[1])
	local last_refill = tonumber(info[2])

	if tokens == nil then
		tokens = capacity
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local filled_tokens = math.min(capacity, tokens + (delta / 1000 * rate))

	local allowed = 0
	if filled_tokens >= requested then
		filled_tokens = filled_tokens - requested
		allowed = 1
		redis.call("HMSET", key, "tokens", filled_tokens, "last_refill", now)
		redis.call("EXPIRE", key, math.ceil(capacity / rate) * 2)
	end

	return allowed
`)

type ctxKeyLog struct{}
type ctxKeyRequestID struct{}
type ctxKeyClaims struct{}

type logHandler struct {
	log  *logrus.Logger
	next http.Handler
}

type responseRecorder struct {
	b      int
	status int
	w      http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header { return r.w.Header() }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.w.Write(p)
	r.b += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.w.WriteHeader(statusCode)
}

func (lh *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, _ := uuid.NewRandom()
	ctx = context.WithValue(ctx, ctxKeyRequestID{}, requestID.String())

	start := time.Now()
	rr := &responseRecorder{w: w}
	log := lh.log.WithFields(logrus.Fields{
		"http.req.path":   r.URL.Path,
		"http.req.method": r.Method,
		"http.req.id":     requestID.String(),
	})
	log.Debug("request started")
	defer func() {
		log.WithFields(logrus.Fields{
			"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
			"http.resp.status":  rr.status,
			"http.resp.bytes":   rr.b}).Debugf("request complete")
	}()

	ctx = context.WithValue(ctx, ctxKeyLog{}, log)
	r = r.WithContext(ctx)
	lh.next.ServeHTTP(rr, r)
}

func requestLogger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}

type Limiter struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisLimiter(rdb *redis.Client, log *logrus.Logger) *Limiter {
	return &Limiter{client: rdb, log: log}
}

func (l *Limiter) Allow(ctx context.Context, key string, capacity int, rate float64) (bool, error) {
	now := time.Now().UnixMilli()

	keys := []string{fmt.Sprintf("rate_limit:%s", key)}
	args := []interface{}{capacity, rate, now, 1}

	result, err := tokenBucketScript.Run(ctx, l.client, keys, args...).Result()
	if err != nil {
		return false, err
	}
	return result.(int64) == 1, nil
}

func (l *Limiter) GlobalAndIPLimiter(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
		defer cancel()

		ip := getRealIP(r)

		globalRate := getEnvFloat("RATELIMIT_GLOBAL_RPS", 1000.0)
		globalBurst := getEnvInt("RATELIMIT_GLOBAL_BURST", 1000)

		ipRate := getEnvFloat("RATELIMIT_IP_RPS", 5.0)
		ipBurst := getEnvInt("RATELIMIT_IP_BURST", 10)

		globalAllowed, err := l.Allow(ctx, "global_api", globalBurst, globalRate)
		if err != nil {
			l.log.Warnf("global limiter redis error: %v", err)
		} else if !globalAllowed {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("System busy"))
			return
		}

		ipAllowed, err := l.Allow(ctx, "ip:"+ip, ipBurst, ipRate)
		if err != nil {
			l.log.Warnf("ip limiter redis error: %v", err)
		} else if !ipAllowed {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	}
}

func getRealIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return ip
}

// requireAuth validates the Authorization bearer token and injects the
// verified claims into the request context.
func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" || tokenStr == header {
			renderHTTPError(requestLogger(r), w, service.ErrInvalidToken, http.StatusUnauthorized)
			return
		}

		claims, err := s.userSvc.VerifyToken(r.Context(), tokenStr)
		if err != nil {
			renderHTTPError(requestLogger(r), w, err, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// requireAdmin layers an admin role check on top of requireAuth.
func (s *apiServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := tokenClaims(r)
		if claims == nil || claims.Role != model.RoleAdmin {
			renderHTTPError(requestLogger(r), w, errForbidden, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenClaims(r *http.Request) *service.TokenClaims {
	claims, _ := r.Context().Value(ctxKeyClaims{}).(*service.TokenClaims)
	return claims
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
