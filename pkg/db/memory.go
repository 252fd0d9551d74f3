package db

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a SettingsInterface which keeps records in the process.
type Memory struct {
	mux     sync.Mutex
	records map[string][]byte
}

var _ SettingsInterface = &Memory{}

func NewMemory() *Memory {
	return &Memory{records: map[string][]byte{}}
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	body, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissing, key)
	}
	return append([]byte(nil), body...), nil
}

func (m *Memory) Save(ctx context.Context, key string, body []byte) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.records[key] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.records, key)
	return nil
}
