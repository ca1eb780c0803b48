package evaluator

import (
	"bytes"
	"container/list"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/aegis-gate/aegis/internal/canon"
	"github.com/aegis-gate/aegis/internal/domain/evaluator"
)

const cacheCapacity = 256

// HTTPClient posts {"input": ...} to <base>/v1/data/<decisionPath> and
// interprets /result/allow and /result/reason, matching the OPA data API
// convention the rest of this codebase already assumes for external policy
// decisions.
type HTTPClient struct {
	Base         string
	DecisionPath string
	HTTP         *http.Client

	mu    sync.Mutex
	cache map[uint64]*list.Element
	order *list.List
}

type cacheEntry struct {
	key uint64
	err error
}

// NewHTTPClient constructs a client with its response cache initialized.
func NewHTTPClient(base, decisionPath string) *HTTPClient {
	return &HTTPClient{
		Base:         base,
		DecisionPath: decisionPath,
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		cache:        make(map[uint64]*list.Element),
		order:        list.New(),
	}
}

// Evaluate implements evaluator.Client. The cache key deliberately excludes
// request_id so that repeated identical intents share one round trip; a
// cache miss always performs a real HTTP call and the cache is never
// substituted for a transport error.
func (c *HTTPClient) Evaluate(input interface{}) error {
	key, cacheable, err := cacheKey(input)
	if err != nil {
		return &evaluator.HttpError{Message: fmt.Sprintf("build cache key: %v", err)}
	}

	if cacheable {
		if cached, ok := c.getCached(key); ok {
			return cached
		}
	}

	result := c.doRequest(input)

	if cacheable {
		c.putCached(key, result)
	}

	return result
}

// cacheKey hashes input with request_id stripped, if present, so that
// identical queries for different requests collide on purpose.
func cacheKey(input interface{}) (uint64, bool, error) {
	m, ok := input.(map[string]interface{})
	if !ok {
		return 0, false, nil
	}
	stripped := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "request_id" {
			continue
		}
		stripped[k] = v
	}
	doc, err := canon.JSON(stripped)
	if err != nil {
		return 0, false, err
	}
	return xxhash.Sum64(doc), true, nil
}

func (c *HTTPClient) getCached(key uint64) (error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).err, true
}

func (c *HTTPClient) putCached(key uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		elem.Value.(*cacheEntry).err = err
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, err: err})
	c.cache[key] = elem

	for c.order.Len() > cacheCapacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.cache, oldest.Value.(*cacheEntry).key)
	}
}

func (c *HTTPClient) doRequest(input interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return &evaluator.HttpError{Message: fmt.Sprintf("marshal input: %v", err)}
	}

	url := fmt.Sprintf("%s/v1/data/%s", c.Base, c.DecisionPath)
	resp, err := c.HTTP.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return &evaluator.HttpError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &evaluator.HttpError{Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &evaluator.HttpError{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var parsed struct {
		Result struct {
			Allow  *bool  `json:"allow"`
			Reason string `json:"reason"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &evaluator.HttpError{Message: fmt.Sprintf("parse response: %v", err)}
	}

	if parsed.Result.Allow == nil {
		return &evaluator.HttpError{Message: "response missing /result/allow"}
	}
	if !*parsed.Result.Allow {
		reason := parsed.Result.Reason
		if reason == "" {
			reason = "policy_denied"
		}
		return &evaluator.DeniedError{Reason: reason}
	}

	return nil
}
