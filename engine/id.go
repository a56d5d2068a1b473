// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math/bits"
)

// idSet is a growable set of small identifiers, stored
// as a bit vector.
type idSet struct {
	words []uint32
	rem   int
}

const wordBits = 32

// grow appends a word of unset bits.
func (s *idSet) grow() {
	s.words = append(s.words, 0)
	s.rem += wordBits
}

// search returns the lowest unset bit.
// It fails only when every bit is set.
func (s *idSet) search() (int, bool) {
	if s.rem == 0 {
		return 0, false
	}
	for i, w := range s.words {
		if w != ^uint32(0) {
			return i*wordBits + bits.TrailingZeros32(^w), true
		}
	}
	return 0, false
}

func (s *idSet) set(i int) {
	w, b := i/wordBits, uint32(1)<<(i%wordBits)
	if s.words[w]&b == 0 {
		s.words[w] |= b
		s.rem--
	}
}

func (s *idSet) unset(i int) {
	w, b := i/wordBits, uint32(1)<<(i%wordBits)
	if s.words[w]&b != 0 {
		s.words[w] &^= b
		s.rem++
	}
}

func (s *idSet) has(i int) bool {
	return i >= 0 && i/wordBits < len(s.words) && s.words[i/wordBits]&(1<<(i%wordBits)) != 0
}

// dataEntry is what a dataMap stores.
type dataEntry[T any] struct {
	data T
	id   int
}

// dataMap stores data of type D with identifiers of
// type I. Data is kept contiguous: removal moves the last
// entry into the hole.
type dataMap[I ~int, D any] struct {
	ids  []int
	used idSet
	data []dataEntry[D]
}

// insert inserts data into m.
// It returns an I value that identifies data in m.
func (m *dataMap[I, D]) insert(data D) I {
	idx, ok := m.used.search()
	if !ok {
		m.used.grow()
		m.ids = append(m.ids, make([]int, wordBits)...)
		idx, _ = m.used.search()
	}
	m.used.set(idx)
	m.ids[idx] = len(m.data)
	m.data = append(m.data, dataEntry[D]{data, idx})
	return I(idx)
}

// remove removes the data identified by id and returns
// it. It returns false if id does not belong to m.
func (m *dataMap[I, D]) remove(id I) (D, bool) {
	if !m.used.has(int(id)) {
		var zero D
		return zero, false
	}
	d := m.ids[id]
	data := m.data[d].data
	last := len(m.data) - 1
	if d < last {
		m.ids[m.data[last].id] = d
		m.data[d] = m.data[last]
	}
	m.ids[id] = -1
	m.used.unset(int(id))
	m.data[last] = dataEntry[D]{}
	m.data = m.data[:last]
	return data, true
}

// get returns a pointer to the data identified by id, or
// nil if id does not belong to m.
func (m *dataMap[I, D]) get(id I) *D {
	if !m.used.has(int(id)) {
		return nil
	}
	return &m.data[m.ids[id]].data
}

// entries returns the entries of m.
// The slice aliases m's storage.
func (m *dataMap[I, D]) entries() []dataEntry[D] { return m.data }

func (m *dataMap[_, _]) len() int { return len(m.data) }
