package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var _ BookArchive = (*boltBookArchive)(nil)

type boltBookArchive struct {
	logger *zap.Logger
	client *bolt.DB
	bucket []byte
}

// GetBoltDBClient opens the archive file, creates the bucket then provides a ready to use client.
func GetBoltDBClient(config *BoltDBConfig) (*bolt.DB, error) {
	db, err := bolt.Open(config.FilePath, 0o600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the archive database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltBookArchive provides an instance of bolt-based book archive.
func NewBoltBookArchive(logger *zap.Logger, config *BoltDBConfig, client *bolt.DB) *boltBookArchive {
	return &boltBookArchive{
		logger: logger,
		client: client,
		bucket: []byte(config.BucketName),
	}
}

// Close shuts down the archive database.
func (ba *boltBookArchive) Close() error {
	return ba.client.Close()
}

// archiveKey encodes ids big-endian so the cursor walks them in ascending order.
func archiveKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// Put inserts or replaces the archived copy of a book.
func (ba *boltBookArchive) Put(_ context.Context, book Book) error {
	data, err := jsoniter.ConfigFastest.Marshal(book)
	if err != nil {
		return err
	}
	return ba.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ba.bucket).Put(archiveKey(book.ID), data)
	})
}

// Remove deletes the archived copy of a book. Missing entries are ignored.
func (ba *boltBookArchive) Remove(_ context.Context, id int64) error {
	return ba.client.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ba.bucket).Delete(archiveKey(id))
	})
}

// GetOne retrieves the archived copy of a book.
func (ba *boltBookArchive) GetOne(_ context.Context, id int64) (Book, error) {
	var book Book
	tx, err := ba.client.Begin(false)
	if err != nil {
		return book, err
	}
	defer tx.Rollback()

	data := tx.Bucket(ba.bucket).Get(archiveKey(id))
	if data == nil {
		return book, ErrBookNotFound
	}
	err = jsoniter.ConfigFastest.Unmarshal(data, &book)
	return book, err
}

// GetAll retrieves every archived book ordered by id.
func (ba *boltBookArchive) GetAll(_ context.Context) ([]Book, error) {
	tx, err := ba.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	books := []Book{}
	c := tx.Bucket(ba.bucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var book Book
		if err = jsoniter.ConfigFastest.Unmarshal(v, &book); err != nil {
			return nil, fmt.Errorf("archive entry %x: %w", k, err)
		}
		books = append(books, book)
	}
	return books, nil
}
