package fenceindex

import (
	"container/list"
	"sync"
	"time"
)

// 文档注释：本地 LRU 缓存（geohash 为键，值为最近邻结果）
// 背景：围栏外的上报往往集中在少数 geohash 格子里（宿舍、食堂），短周期内重复定位；TTL 可调。
// 约束：附近无围栏同样缓存，避免远距离上报反复走最近邻。
type lru struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	lst  *list.List
	dict map[string]*list.Element
}

type entry struct {
	k   string
	v   cached
	exp time.Time
}

type cached struct {
	idx int
}

func newLRU(capacity int, ttl time.Duration) *lru {
	return &lru{cap: capacity, ttl: ttl, now: time.Now, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *lru) get(k string) (cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(entry)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return cached{}, false
}

func (c *lru) set(k string, v cached) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = entry{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(entry{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
