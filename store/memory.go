/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

// memoryBackend keeps every document in a flat map. It is the default
// runtime backend and the one the tests inject everywhere.
type memoryBackend struct {
	docs map[string]memoryDoc
}

type memoryDoc struct {
	data    []byte
	version int64
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{docs: make(map[string]memoryDoc)}
}

func (m *memoryBackend) get(path string) ([]byte, int64, error) {
	doc, ok := m.docs[path]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return doc.data, doc.version, nil
}

func (m *memoryBackend) list(prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for path, doc := range m.docs {
		if pathUnder(path, prefix) {
			out[path] = doc.data
		}
	}
	return out, nil
}

func (m *memoryBackend) apply(writes []write) error {
	for _, w := range writes {
		if w.data == nil {
			delete(m.docs, w.path)
			continue
		}
		m.docs[w.path] = memoryDoc{data: w.data, version: w.version}
	}
	return nil
}

func (m *memoryBackend) close() error {
	m.docs = nil
	return nil
}
