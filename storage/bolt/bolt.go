/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bolt stores script libraries in a BoltDB file.
package bolt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/Comcast/natives/storage"
)

// Scheme is the library-name protocol that Provider handles, as in
// "bolt://collect".
const Scheme = "bolt"

var bucket = []byte("libraries")

// Storage is a storage.Storage backed by BoltDB.
type Storage struct {
	filename string
	db       *bolt.DB
	logger   zerolog.Logger
}

// Open opens (or creates) the BoltDB file.
func Open(filename string, logger zerolog.Logger) (*Storage, error) {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(filename, 0644, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Storage{
		filename: filename,
		db:       db,
		logger:   logger.With().Str("component", "bolt").Str("file", filename).Logger(),
	}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Put(ctx context.Context, name, src string) error {
	s.logger.Debug().Str("library", name).Int("bytes", len(src)).Msg("Put")
	if name == "" {
		return fmt.Errorf("empty library name")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(name), []byte(src))
	})
}

func (s *Storage) Get(ctx context.Context, name string) (string, error) {
	s.logger.Debug().Str("library", name).Msg("Get")
	var src string
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(bucket).Get([]byte(name))
		if bs == nil {
			return storage.ErrNotFound
		}
		// bs is only valid during the transaction.
		src = string(bs)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return src, nil
}

func (s *Storage) Delete(ctx context.Context, name string) error {
	s.logger.Debug().Str("library", name).Msg("Delete")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

func (s *Storage) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Provider resolves "bolt://name" library names from s.  A name
// without the protocol is looked up as is.
func (s *Storage) Provider() func(ctx context.Context, name string) (string, error) {
	return func(ctx context.Context, name string) (string, error) {
		return s.Get(ctx, strings.TrimPrefix(name, Scheme+"://"))
	}
}
