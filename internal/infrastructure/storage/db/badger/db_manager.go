package dbbadger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/timshannon/badgerhold/v4"

	"github.com/kiosknetwork/kiosk-daemon/internal/core/domain"
	"github.com/kiosknetwork/kiosk-daemon/internal/core/ports"
)

// DbManager holds all the badgerhold stores in a single data structure.
type DbManager struct {
	OrderStore    *badgerhold.Store
	EndpointStore *badgerhold.Store

	orderRepository    domain.OrderRepository
	endpointRepository domain.EndpointRepository
}

// NewDbManager opens (or creates if not exists) the badger stores on disk at
// the given base data dir, one dedicated directory per aggregate.
func NewDbManager(baseDbDir string, logger badger.Logger) (*DbManager, error) {
	orderDb, err := createDb(filepath.Join(baseDbDir, "orders"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening orders db: %w", err)
	}

	endpointDb, err := createDb(filepath.Join(baseDbDir, "endpoints"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening endpoints db: %w", err)
	}

	manager := &DbManager{
		OrderStore:    orderDb,
		EndpointStore: endpointDb,
	}
	manager.orderRepository = newOrderRepositoryImpl(manager)
	manager.endpointRepository = newEndpointRepositoryImpl(manager)
	return manager, nil
}

func (d *DbManager) OrderRepository() domain.OrderRepository {
	return d.orderRepository
}

func (d *DbManager) EndpointRepository() domain.EndpointRepository {
	return d.endpointRepository
}

func (d *DbManager) Close() error {
	if err := d.OrderStore.Close(); err != nil {
		return err
	}
	return d.EndpointStore.Close()
}

// JSONEncode is a custom JSON based encoder for badger
func JSONEncode(value interface{}) ([]byte, error) {
	var buff bytes.Buffer

	en := json.NewEncoder(&buff)

	err := en.Encode(value)
	if err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// JSONDecode is a custom JSON based decoder for badger
func JSONDecode(data []byte, value interface{}) error {
	var buff bytes.Buffer
	de := json.NewDecoder(&buff)

	_, err := buff.Write(data)
	if err != nil {
		return err
	}

	return de.Decode(value)
}

func createDb(dbDir string, logger badger.Logger) (db *badgerhold.Store, err error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	db, err = badgerhold.Open(badgerhold.Options{
		Encoder:          JSONEncode,
		Decoder:          JSONDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})

	return
}

var _ ports.RepoManager = (*DbManager)(nil)
