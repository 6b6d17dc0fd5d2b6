// Package store keeps PixelBuffers on disk as zstd compressed TLV records.
package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/kpfaulkner/pixmap-go/imgerr"
	"github.com/kpfaulkner/pixmap-go/pixelmap"
	"github.com/kpfaulkner/pixmap-go/serial"
	log "github.com/sirupsen/logrus"
)

const recordExt = ".pxt.zst"

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func mustNewZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(serial.MaxTLVData+1024),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var zstdEncPool = sync.Pool{
	New: func() any {
		return mustNewZstdEncoder()
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		return mustNewZstdDecoder()
	},
}

func compress(data []byte) []byte {
	enc := zstdEncPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(data, nil)
	zstdEncPool.Put(enc)
	return out
}

func decompress(data []byte) ([]byte, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(data, nil)
	zstdDecPool.Put(dec)
	return out, err
}

// FileStore writes one file per key under Dir. Writes go to a temporary file
// that is renamed into place, so readers never see a partial record.
type FileStore struct {
	Dir string

	mu sync.RWMutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "store", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", imgerr.New(imgerr.InvalidParameter, "store", "invalid key %q", key)
	}
	return filepath.Join(s.Dir, key+recordExt), nil
}

func (s *FileStore) Put(key string, pb *pixelmap.PixelBuffer) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	record, err := serial.EncodeTLV(pb)
	if err != nil {
		return err
	}
	data := compress(record)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.Dir, "."+key+".*")
	if err != nil {
		return imgerr.Wrap(imgerr.IoAbnormal, "store put", err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		log.Errorf("store: writing %s: %v", key, err)
		return imgerr.Wrap(imgerr.IoAbnormal, "store put", err)
	}
	log.Debugf("store: %s holds %d bytes (%d raw)", key, len(data), len(record))
	return nil
}

// Get returns a new heap backed buffer.
func (s *FileStore) Get(key string) (*pixelmap.PixelBuffer, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, imgerr.New(imgerr.InvalidParameter, "store get", "no record for %q", key)
		}
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "store get", err)
	}
	record, err := decompress(data)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Malformed, "store get", err)
	}
	return serial.DecodeTLV(record)
}

func (s *FileStore) Exists(key string) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(path)
	return err == nil
}

// Delete is a no-op for a missing key.
func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return imgerr.Wrap(imgerr.IoAbnormal, "store delete", err)
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.Dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, imgerr.Wrap(imgerr.IoAbnormal, "store keys", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(keys)
	return keys, nil
}
