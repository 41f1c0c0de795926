package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const deploymentsBucket = "deployments"

// keyTimeLayout sorts lexically in time order.
const keyTimeLayout = "20060102T150405.000000000Z"

var ErrNotFound = errors.New("no deployment recorded")

// Deployment is one recorded deploy of the contract pair.
type Deployment struct {
	Network         string    `json:"network"`
	ChainID         uint64    `json:"chainId"`
	RustAddress     string    `json:"rustContractAddress"`
	SolidityAddress string    `json:"solidityContractAddress"`
	RustTxHash      string    `json:"rustTxHash,omitempty"`
	SolidityTxHash  string    `json:"solidityTxHash,omitempty"`
	Deployer        string    `json:"deployer,omitempty"`
	DeployedAt      time.Time `json:"deployedAt"`
}

// Store keeps deployments in a bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(deploymentsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func deploymentKey(network string, at time.Time) []byte {
	return []byte(network + "/" + at.UTC().Format(keyTimeLayout))
}

// Save records d. A zero DeployedAt is set to now.
func (s *Store) Save(d *Deployment) error {
	if d.Network == "" {
		return errors.New("deployment has no network")
	}
	if d.DeployedAt.IsZero() {
		d.DeployedAt = time.Now().UTC()
	}

	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode deployment: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(deploymentsBucket))
		if bucket == nil {
			return fmt.Errorf("deployments bucket not found")
		}
		return bucket.Put(deploymentKey(d.Network, d.DeployedAt), value)
	})
}

// List returns the deployments on network, oldest first.
func (s *Store) List(network string) ([]*Deployment, error) {
	prefix := []byte(network + "/")
	var out []*Deployment

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(deploymentsBucket))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var d Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("corrupt deployment %s: %w", k, err)
			}
			out = append(out, &d)
		}
		return nil
	})
	return out, err
}

// Latest returns the newest deployment on network.
func (s *Store) Latest(network string) (*Deployment, error) {
	all, err := s.List(network)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNotFound, network)
	}
	return all[len(all)-1], nil
}

// Count returns the number of deployments across all networks.
func (s *Store) Count() int {
	var n int
	s.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket([]byte(deploymentsBucket)); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	return n
}
