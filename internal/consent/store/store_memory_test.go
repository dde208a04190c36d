package store

import "testing"

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, func() Store { return NewInMemoryStore() })
}
