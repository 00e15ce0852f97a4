package gossip

import (
	"time"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/transport"
	"github.com/rattab/slick/pkg/slick/wire"
)

// fetchRetryBase is the initial backoff before retrying a failed fetch;
// each subsequent retry for the same (key, KeyId) doubles it, capped at
// fetchRetryMax.
const (
	fetchRetryBase = 2 * time.Second
	fetchRetryMax  = 2 * time.Minute
)

// ensureFetch starts a fetch-mode connection toward loc to resolve
// (key, keyID) if one isn't already outstanding.
func (e *Engine) ensureFetch(key string, keyID slick.KeyId, loc slick.NodeLocation) {
	if len(loc) == 0 {
		return
	}
	bucket, ok := e.tables.fetches[key]
	if !ok {
		bucket = make(map[slick.KeyId]*fetchState)
		e.tables.fetches[key] = bucket
	}
	if _, inFlight := bucket[keyID]; inFlight {
		return
	}
	bucket[keyID] = &fetchState{loc: loc.Clone()}
	e.dialFetch(key, keyID, loc[0])
}

func (e *Engine) dialFetch(key string, keyID slick.KeyId, addr slick.Address) {
	fm := wire.FetchMessage{Items: []wire.FetchKey{{Key: key, KeyID: keyID}}}
	body := wire.EncodeTyped(wire.TypeFetch, fm.Encode())
	if err := e.poller.ConnectFetch(addr, body); err != nil {
		if e.metrics != nil {
			e.metrics.FetchAttempts.WithLabelValues("dial_error").Inc()
		}
		e.scheduleFetchRetry(key, keyID)
		return
	}
	if e.metrics != nil {
		e.metrics.FetchAttempts.WithLabelValues("dialed").Inc()
	}
}

// onFetchConnClosed is invoked whenever a fetch-mode connection tears
// down. A clean fetch closes itself right after handleData fires the
// watchers and clears the table entry; if the entry is still present
// here, the connection died before a Data reply arrived and the fetch
// needs to be retried.
func (e *Engine) onFetchConnClosed(c *transport.ConnState, info *connInfo) {
	for key, bucket := range e.tables.fetches {
		for keyID := range bucket {
			// Best-effort correlation: a fetch-mode connection carries
			// exactly one (key, keyId) pair in this implementation, so
			// any entry still present for the peer this socket dialed
			// is the one that failed to complete.
			if len(c.Remote) > 0 && addrEqual(e.tables.keys[key][keyID], c.Remote[0]) {
				e.scheduleFetchRetry(key, keyID)
			}
		}
	}
}

func addrEqual(item *slick.Item, addr slick.Address) bool {
	if item == nil {
		return false
	}
	for _, a := range item.Addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleFetchRetry(key string, keyID slick.KeyId) {
	bucket, ok := e.tables.fetches[key]
	if !ok {
		return
	}
	st, ok := bucket[keyID]
	if !ok {
		return
	}
	if len(e.tables.watches[key]) == 0 {
		delete(bucket, keyID)
		if len(bucket) == 0 {
			delete(e.tables.fetches, key)
		}
		return
	}
	st.retryCount++
	delay := fetchRetryBase << uint(st.retryCount-1)
	if delay > fetchRetryMax || delay <= 0 {
		delay = fetchRetryMax
	}
	e.tables.fetchExpiration = append(e.tables.fetchExpiration, fetchExpEntry{
		key: key, keyID: keyID, retryDeadlineMs: e.nowMs() + uint64(delay.Milliseconds()),
	})
	if e.metrics != nil {
		e.metrics.FetchRetries.Inc()
	}
}

// processFetchRetries is called from tick: any retry entry whose
// deadline has passed is redialed, provided the fetch is still wanted.
func (e *Engine) processFetchRetries() {
	now := e.nowMs()
	var remaining []fetchExpEntry
	for _, ent := range e.tables.fetchExpiration {
		if ent.retryDeadlineMs > now {
			remaining = append(remaining, ent)
			continue
		}
		bucket, ok := e.tables.fetches[ent.key]
		if !ok {
			continue
		}
		st, ok := bucket[ent.keyID]
		if !ok || len(e.tables.watches[ent.key]) == 0 {
			delete(bucket, ent.keyID)
			continue
		}
		if len(st.loc) == 0 {
			continue
		}
		e.dialFetch(ent.key, ent.keyID, st.loc[0])
	}
	e.tables.fetchExpiration = remaining
}
