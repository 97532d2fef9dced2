package main

// middleware module provides logging and rate limit middlewares of MLBoard
// router
//
// Copyright (c) 2023 - Valentin Kuznetsov <vkuznet@gmail.com>
//

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"
	stdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memory "github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/uptrace/bunrouter"
)

// rate limiter shared by all routes, clients are keyed by their IP
var limiterMiddleware *stdlib.Middleware

// initLimiter sets up in-memory rate limiter for given rate, e.g. 100-S
func initLimiter(rate string) error {
	lrate, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return fmt.Errorf("invalid limiter rate %q: %w", rate, err)
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "mlboard",
		CleanUpInterval: time.Minute,
	})
	limiterMiddleware = stdlib.NewMiddleware(
		limiter.New(store, lrate),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			err := fmt.Errorf("rate %s exceeded", rate)
			httpError(w, r, RateLimitError, err, http.StatusTooManyRequests)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			httpError(w, r, GenericError, err, http.StatusInternalServerError)
		}),
	)
	if Config.Verbose > 0 {
		log.Printf("rate limiter %d requests per %v", lrate.Limit, lrate.Period)
	}
	return nil
}

// statusRecorder keeps HTTP status and number of bytes written by handler
type statusRecorder struct {
	http.ResponseWriter
	status   int
	bytesOut int64
}

// Status returns recorded HTTP status, handlers which never call
// WriteHeader reply with 200
func (sr *statusRecorder) Status() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status != 0 {
		return
	}
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(data []byte) (int, error) {
	if sr.status == 0 {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(data)
	sr.bytesOut += int64(n)
	return n, err
}

// bunrouterLoggingMiddleware logs every served request
func bunrouterLoggingMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		err := next(sr, req)
		logRequest(req.Request, start, sr.Status(), sr.bytesOut)
		return err
	}
}

// bunrouterLimitMiddleware rejects clients which exceed configured rate
func bunrouterLimitMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if limiterMiddleware == nil {
			return next(w, req)
		}
		r := req.Request
		key := limiterMiddleware.KeyGetter(r)
		if limiterMiddleware.ExcludedKey != nil && limiterMiddleware.ExcludedKey(key) {
			return next(w, req)
		}
		lctx, err := limiterMiddleware.Limiter.Get(r.Context(), key)
		if err != nil {
			limiterMiddleware.OnError(w, r, err)
			return nil
		}
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		if lctx.Reached {
			h.Set("Retry-After", strconv.FormatInt(retryAfter(lctx.Reset), 10))
			limiterMiddleware.OnLimitReached(w, r)
			return nil
		}
		return next(w, req)
	}
}

// number of seconds until limiter window given by unix reset time
func retryAfter(reset int64) int64 {
	secs := reset - time.Now().Unix()
	if secs < 1 {
		return 1
	}
	return secs
}
