package filestore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/igolaizola/melodai/pkg/filestore/local"
	"github.com/igolaizola/melodai/pkg/filestore/s3"
	"github.com/igolaizola/melodai/pkg/filestore/tgstore"
)

type fs interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Store saves generated artifacts to the configured destination.
type Store struct {
	fs     fs
	prefix string
}

// Save stores data under name.
func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	if s.prefix != "" {
		name = s.prefix + "/" + name
	}
	return s.fs.Upload(ctx, name, data)
}

// WithPrefix returns a store that saves every file under prefix.
func (s *Store) WithPrefix(prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if s.prefix != "" {
		prefix = s.prefix + "/" + prefix
	}
	return &Store{fs: s.fs, prefix: prefix}
}

func New(typ, conn, proxy string, debug bool) (*Store, error) {
	var fs fs
	switch typ {
	case "telegram":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid telegram connection string %q", conn)
		}
		token := split[0]
		chat, err := strconv.ParseInt(split[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filestore: invalid telegram chat id %q: %w", split[1], err)
		}
		candidate, err := tgstore.New(token, chat, proxy, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.Split(split[1], ".")
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local", "":
		if conn == "" {
			conn = "."
		}
		fs = local.New(conn, debug)
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}
