// Package source identifies the audio sources a capture can run against.
//
// A source is either a local file or a downloaded remote episode. The
// distinction is resolved exactly once, at the Resolver boundary; the rest
// of the pipeline carries the opaque key returned by Source.Key and never
// inspects it.
package source

import (
	"fmt"
	"strings"
)

// Kind discriminates the two source variants.
type Kind int

const (
	KindLocalFile Kind = iota + 1
	KindRemoteEpisode
)

const (
	localPrefix   = "local:"
	episodePrefix = "episode:"
)

// Source is a tagged source identity. The zero value is invalid.
type Source struct {
	kind Kind
	id   string
}

// LocalFile identifies a file on disk by its path.
func LocalFile(path string) Source {
	return Source{kind: KindLocalFile, id: path}
}

// RemoteEpisode identifies a downloaded episode by its GUID.
func RemoteEpisode(guid string) Source {
	return Source{kind: KindRemoteEpisode, id: guid}
}

// Kind returns the source variant.
func (s Source) Kind() Kind { return s.kind }

// ID returns the variant-specific identifier (path or GUID).
func (s Source) ID() string { return s.id }

// IsZero reports whether s carries no identity.
func (s Source) IsZero() bool { return s.kind == 0 }

// Key renders the source as the opaque storage key used everywhere
// downstream of the resolver.
func (s Source) Key() string {
	switch s.kind {
	case KindLocalFile:
		return localPrefix + s.id
	case KindRemoteEpisode:
		return episodePrefix + s.id
	default:
		return ""
	}
}

func (s Source) String() string { return s.Key() }

// ParseKey reverses Key. It is the only place the key structure is
// interpreted.
func ParseKey(key string) (Source, error) {
	switch {
	case strings.HasPrefix(key, localPrefix):
		id := key[len(localPrefix):]
		if id == "" {
			return Source{}, fmt.Errorf("source: empty local path in key %q", key)
		}
		return LocalFile(id), nil
	case strings.HasPrefix(key, episodePrefix):
		id := key[len(episodePrefix):]
		if id == "" {
			return Source{}, fmt.Errorf("source: empty episode id in key %q", key)
		}
		return RemoteEpisode(id), nil
	default:
		return Source{}, fmt.Errorf("source: unrecognized key %q", key)
	}
}
