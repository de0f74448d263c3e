// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"filippo.io/age"
	"golang.org/x/sys/unix"
)

const (
	// FileName is the image file inside the image directory.
	FileName = "image.crac"

	// LockName is the flock file inside the image directory.
	LockName = "image.lock"
)

var (
	// ErrNoImage is returned by Load when no checkpoint has been
	// written to the directory. It wraps os.ErrNotExist.
	ErrNoImage = fmt.Errorf("no checkpoint image: %w", os.ErrNotExist)

	// ErrBusy is returned when another process holds the image lock.
	ErrBusy = errors.New("checkpoint image is locked by another process")
)

// StoreOptions configures a [Store].
type StoreOptions struct {
	// Directory holds the image and its lock file. Created with mode
	// 0700 if missing.
	Directory string

	// Compression applied to saved images.
	Compression Compression

	// Recipients seal saved images when non-empty.
	Recipients []age.Recipient

	// Identities open sealed images on Load.
	Identities []age.Identity
}

// Store saves and loads the single current image of a directory.
type Store struct {
	directory   string
	compression Compression
	recipients  []age.Recipient
	identities  []age.Identity
}

// NewStore creates the image directory if needed and returns a Store
// for it.
func NewStore(options StoreOptions) (*Store, error) {
	if options.Directory == "" {
		return nil, errors.New("image directory is required")
	}
	if err := os.MkdirAll(options.Directory, 0700); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &Store{
		directory:   options.Directory,
		compression: options.Compression,
		recipients:  options.Recipients,
		identities:  options.Identities,
	}, nil
}

// Path returns the image file path.
func (s *Store) Path() string {
	return filepath.Join(s.directory, FileName)
}

// Exists reports whether an image file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Lock takes the exclusive image lock without blocking. It returns
// ErrBusy when another process holds it. The returned function
// releases the lock.
//
// flock locks belong to the open file description, so a second Lock
// from the same process also fails with ErrBusy until the first is
// released.
func (s *Store) Lock() (func() error, error) {
	file, err := os.OpenFile(filepath.Join(s.directory, LockName), os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening image lock: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("locking image: %w", err)
	}
	return func() error {
		// Closing the descriptor releases the flock.
		return file.Close()
	}, nil
}

// Save encodes img and atomically replaces the current image. It takes
// the image lock for the duration of the write.
func (s *Store) Save(img *Image) error {
	data, err := Encode(img, EncodeOptions{
		Compression: s.compression,
		Recipients:  s.recipients,
	})
	if err != nil {
		return err
	}

	unlock, err := s.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	return writeAtomic(s.Path(), data)
}

// Load reads and decodes the current image. It does not take the lock;
// callers that act on the image (restore) hold [Store.Lock] around
// Load and the work that follows.
func (s *Store) Load() (*Image, error) {
	data, err := s.ReadRaw()
	if err != nil {
		return nil, err
	}
	img, err := Decode(data, s.identities)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path(), err)
	}
	return img, nil
}

// ReadRaw returns the undecoded image file, for header inspection.
func (s *Store) ReadRaw() ([]byte, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoImage
		}
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// Remove deletes the current image. Idempotent.
func (s *Store) Remove() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing image: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temporary file in the same directory,
// fsyncs it, renames it over path, and fsyncs the parent directory.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary image file: %w", err)
	}

	// Write, sync, close, in that order. On any failure remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary image file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary image file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary image file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming image into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
