// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/learningcurve/services/curve"
)

// CheckpointVersion is the stored record format version.
const CheckpointVersion = "1.0.0"

const keyPrefix = "lrncrv/"

var (
	// ErrCheckpointClosed is returned after Close.
	ErrCheckpointClosed = errors.New("checkpoint is closed")

	// ErrChecksumMismatch is returned when a stored record is corrupt.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")
)

// record is the stored form of one shard result.
type record struct {
	Version  string            `json:"version"`
	RunKey   string            `json:"run_key"`
	Result   curve.ShardResult `json:"result"`
	Checksum string            `json:"checksum"`
}

// checksum covers everything except the Checksum field.
func (r record) checksum() (string, error) {
	payload, err := json.Marshal(struct {
		Version string            `json:"version"`
		RunKey  string            `json:"run_key"`
		Result  curve.ShardResult `json:"result"`
	}{r.Version, r.RunKey, r.Result})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// shardKey is lrncrv/<runKey>/<size>, with the size zero-padded so that
// keys iterate in size order.
func shardKey(runKey string, size int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", keyPrefix, runKey, size))
}

func runPrefix(runKey string) []byte {
	return []byte(keyPrefix + runKey + "/")
}

// BadgerCheckpoint stores shard results in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type BadgerCheckpoint struct {
	mu     sync.RWMutex
	db     *badger.DB
	gc     *gcRunner
	closed bool
}

// OpenCheckpoint opens or creates a checkpoint database.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is set.
//
// Outputs:
//
//	*BadgerCheckpoint - The checkpoint. Caller must call Close.
//	error - Non-nil if the database cannot be opened.
func OpenCheckpoint(cfg Config) (*BadgerCheckpoint, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	cp := &BadgerCheckpoint{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		cp.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return cp, nil
}

// Save stores one result under runKey, replacing any earlier result for
// the same size.
func (c *BadgerCheckpoint) Save(ctx context.Context, runKey string, result curve.ShardResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	rec := record{Version: CheckpointVersion, RunKey: runKey, Result: result}
	sum, err := rec.checksum()
	if err != nil {
		return fmt.Errorf("checksum shard %d: %w", result.Size, err)
	}
	rec.Checksum = sum
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode shard %d: %w", result.Size, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCheckpointClosed
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(shardKey(runKey, result.Size), value)
	})
}

// Load returns every result stored under runKey in size order.
//
// Outputs:
//
//	[]curve.ShardResult - The results. Empty when the run is unknown.
//	error - ErrChecksumMismatch or a decode error for corrupt records,
//	  ErrCheckpointClosed after Close.
func (c *BadgerCheckpoint) Load(ctx context.Context, runKey string) ([]curve.ShardResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrCheckpointClosed
	}

	var out []curve.ShardResult
	prefix := runPrefix(runKey)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			want, err := rec.checksum()
			if err != nil {
				return err
			}
			if want != rec.Checksum || rec.RunKey != runKey {
				return fmt.Errorf("%w: %s", ErrChecksumMismatch, item.Key())
			}
			out = append(out, rec.Result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes every result stored under runKey.
func (c *BadgerCheckpoint) Delete(ctx context.Context, runKey string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCheckpointClosed
	}
	return c.db.DropPrefix(runPrefix(runKey))
}

// Runs returns the run keys present in the checkpoint.
func (c *BadgerCheckpoint) Runs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrCheckpointClosed
	}

	var runs []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var last []byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefix))
			i := bytes.LastIndexByte(key, '/')
			if i < 0 {
				continue
			}
			if run := key[:i]; !bytes.Equal(run, last) {
				last = append(last[:0], run...)
				runs = append(runs, string(run))
			}
		}
		return nil
	})
	return runs, err
}

// Close stops GC and closes the database. Safe to call more than once.
func (c *BadgerCheckpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.gc != nil {
		c.gc.stop()
	}
	return c.db.Close()
}
