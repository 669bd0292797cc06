package ports

// KVStore is a small persistent key-value cache shared by the pipeline.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type KVStore interface {
	// Get returns the value stored under key. ok is false on a miss.
	Get(key string) (value []byte, ok bool, err error)

	// Put stores value under key.
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}
