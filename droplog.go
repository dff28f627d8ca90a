// Copyright 2025 Bruno Schaatsbergen. All rights reserved.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outnet

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// lateWindow is how long after a timeout a dropped datagram is still
	// reported as a late reply instead of a cold unsolicited one.
	lateWindow = 10 * time.Second

	// lateEntries bounds the recently-timed-out set.
	lateEntries = 1024
)

// dropLog reports dropped datagrams without letting a reply flood drown
// the log. Unsolicited and wrong-port reports share one rate limiter, and
// an expiring set of recently-timed-out query keys distinguishes a reply
// that simply lost the race against its timer from a datagram nobody
// asked for; such late replies are logged at debug level without the
// limiter. No reply data is ever retained.
type dropLog struct {
	limit *rate.Limiter
	late  *lru.LRU[pendingKey, struct{}]
}

func newDropLog() *dropLog {
	return &dropLog{
		limit: rate.NewLimiter(rate.Every(time.Second), 8),
		late:  lru.NewLRU[pendingKey, struct{}](lateEntries, nil, lateWindow),
	}
}

// timedOut records that a query's timer fired, so a matching datagram
// arriving within lateWindow is classified as late rather than
// unsolicited.
func (l *dropLog) timedOut(k pendingKey) {
	l.late.Add(k, struct{}{})
}

// unsolicited reports a datagram whose key matched no in-flight query.
func (l *dropLog) unsolicited(log Logger, k pendingKey) {
	if _, ok := l.late.Get(k); ok {
		log.Debug("reply after timeout. dropped.",
			Field{"id", k.id},
			Field{"addr", k.addr})
		return
	}
	if l.limit.Allow() {
		log.Info("received unsolicited udp reply. dropped.",
			Field{"id", k.id},
			Field{"addr", k.addr})
	}
}

// wrongPort reports a datagram that matched a query's key but arrived on
// a socket other than the one the query was sent from.
func (l *dropLog) wrongPort(log Logger, k pendingKey) {
	if l.limit.Allow() {
		log.Info("received reply id,addr on wrong port. dropped.",
			Field{"id", k.id},
			Field{"addr", k.addr})
	}
}
