package dispatcher

import (
	"container/list"
)

type orderedEntry[K comparable, V any] struct {
	key   K
	value V
}

// orderedMap is a map that iterates in insertion order. Re-inserting a
// key moves it to the back.
type orderedMap[K comparable, V any] struct {
	order *list.List
	index map[K]*list.Element
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{
		order: list.New(),
		index: make(map[K]*list.Element),
	}
}

func (m *orderedMap[K, V]) put(key K, value V) {
	if e, ok := m.index[key]; ok {
		m.order.Remove(e)
	}
	m.index[key] = m.order.PushBack(orderedEntry[K, V]{key: key, value: value})
}

func (m *orderedMap[K, V]) get(key K) (V, bool) {
	e, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value.(orderedEntry[K, V]).value, true
}

func (m *orderedMap[K, V]) has(key K) bool {
	_, ok := m.index[key]
	return ok
}

func (m *orderedMap[K, V]) delete(key K) (V, bool) {
	e, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(m.index, key)
	m.order.Remove(e)
	return e.Value.(orderedEntry[K, V]).value, true
}

func (m *orderedMap[K, V]) front() (K, V, bool) {
	e := m.order.Front()
	if e == nil {
		var (
			key   K
			value V
		)
		return key, value, false
	}
	entry := e.Value.(orderedEntry[K, V])
	return entry.key, entry.value, true
}

func (m *orderedMap[K, V]) popFront() (K, V, bool) {
	key, value, ok := m.front()
	if ok {
		m.delete(key)
	}
	return key, value, ok
}

func (m *orderedMap[K, V]) values() []V {
	ret := make([]V, 0, m.order.Len())
	for e := m.order.Front(); e != nil; e = e.Next() {
		ret = append(ret, e.Value.(orderedEntry[K, V]).value)
	}
	return ret
}

func (m *orderedMap[K, V]) len() int {
	return m.order.Len()
}

func (m *orderedMap[K, V]) clear() {
	m.order.Init()
	m.index = make(map[K]*list.Element)
}
