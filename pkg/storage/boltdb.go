package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/hypernet/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCubes = []byte("cubes")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "hypernet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCubes); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketCubes, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) SaveCube(cube *types.Cube) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putCube(tx.Bucket(bucketCubes), cube)
	})
}

func (s *BoltStore) GetCube(name string) (*types.Cube, error) {
	var cube *types.Cube
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		cube, err = getCube(tx.Bucket(bucketCubes), name)
		return err
	})
	return cube, err
}

func (s *BoltStore) ListCubes() ([]*types.Cube, error) {
	var cubes []*types.Cube
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCubes).ForEach(func(k, v []byte) error {
			var cube types.Cube
			if err := json.Unmarshal(v, &cube); err != nil {
				return fmt.Errorf("failed to decode cube %s: %w", k, err)
			}
			cubes = append(cubes, &cube)
			return nil
		})
	})
	return cubes, err
}

func (s *BoltStore) DeleteCube(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCubes)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("cube %s: %w", name, ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

func (s *BoltStore) UpdateNode(name string, node types.NodeRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCubes)
		cube, err := getCube(b, name)
		if err != nil {
			return err
		}
		if int(node.Label) >= len(cube.Nodes) {
			return fmt.Errorf("cube %s has no node %s", name, node.Label)
		}
		cube.Nodes[node.Label] = node
		return putCube(b, cube)
	})
}

func putCube(b *bolt.Bucket, cube *types.Cube) error {
	data, err := json.Marshal(cube)
	if err != nil {
		return err
	}
	return b.Put([]byte(cube.Name), data)
}

func getCube(b *bolt.Bucket, name string) (*types.Cube, error) {
	data := b.Get([]byte(name))
	if data == nil {
		return nil, fmt.Errorf("cube %s: %w", name, ErrNotFound)
	}
	var cube types.Cube
	if err := json.Unmarshal(data, &cube); err != nil {
		return nil, fmt.Errorf("failed to decode cube %s: %w", name, err)
	}
	return &cube, nil
}
