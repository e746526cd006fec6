package geocache

import (
	"container/list"
	"sync"

	"route-api/internal/coord"
)

// 文档注释：进程内 LRU（规范化地名为键）
// 背景：同一行程中重复出现的地点只需解析一次；导入新行程时整体清空。
// 约束：容量满时淘汰最久未使用的条目。
type lru struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[string]*list.Element
}

type lruItem struct {
	k string
	v coord.Coordinate
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 1024
	}
	return &lru{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *lru) get(k string) (coord.Coordinate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		c.lst.MoveToFront(e)
		return e.Value.(lruItem).v, true
	}
	return coord.Coordinate{}, false
}

func (c *lru) set(k string, v coord.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		e.Value = lruItem{k: k, v: v}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(lruItem{k: k, v: v})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(lruItem).k)
		c.lst.Remove(back)
	}
}

func (c *lru) reset() {
	c.mu.Lock()
	c.lst.Init()
	c.dict = make(map[string]*list.Element)
	c.mu.Unlock()
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
