package objects

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/mosaicnetworks/herald/src/crypto"
	"github.com/mosaicnetworks/herald/src/object"
	"github.com/sirupsen/logrus"
)

const (
	dataURIPrefix = "data:"
	// EmbedPrefix starts the pointer that replaces an inline data URI.
	EmbedPrefix = "herald-embed:"
	// embedKeyPrefix namespaces embeds in the blob store.
	embedKeyPrefix = "embed/"
)

// EmbedError reports the properties whose embed could not be resolved. The
// rest of the object is resolved normally.
type EmbedError struct {
	Paths []string
	Errs  []error
}

// Error implements the error interface.
func (e *EmbedError) Error() string {
	parts := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		parts[i] = fmt.Sprintf("%s: %v", p, e.Errs[i])
	}
	return "failed to resolve embeds: " + strings.Join(parts, "; ")
}

func embedKey(hash string) string {
	return embedKeyPrefix + hash
}

// ReplaceEmbeds stores every data URI found in a string property of o, at any
// depth, in the blob store and replaces it with a pointer. o is modified in
// place. It returns the number of properties replaced.
func (s *Store) ReplaceEmbeds(ctx context.Context, o object.Object) (int, error) {
	count := 0

	err := walkStrings(o, "", func(path string, value string, set func(string)) error {
		if !strings.HasPrefix(value, dataURIPrefix) {
			return nil
		}

		hash := common.EncodeToString(crypto.SHA256([]byte(value)))

		if err := s.blobs.Put(ctx, embedKey(hash), []byte(value)); err != nil {
			return err
		}

		set(EmbedPrefix + hash)
		count++

		s.logger.WithFields(logrus.Fields{
			"path": path,
			"hash": hash,
			"size": len(value),
		}).Debug("Replaced embed")

		return nil
	})

	return count, err
}

// ResolveEmbeds replaces every embed pointer in o with the data it points to.
// Pointers that fail to resolve are left untouched and reported in an
// *EmbedError.
func (s *Store) ResolveEmbeds(ctx context.Context, o object.Object) error {
	embedErr := &EmbedError{}

	err := walkStrings(o, "", func(path string, value string, set func(string)) error {
		if !strings.HasPrefix(value, EmbedPrefix) {
			return nil
		}

		hash := strings.TrimPrefix(value, EmbedPrefix)

		data, err := s.blobs.Get(ctx, embedKey(hash))
		if err == nil && common.EncodeToString(crypto.SHA256(data)) != hash {
			err = common.Errorf("Embed", common.InvalidSignature, hash, "content does not match hash")
		}
		if err != nil {
			embedErr.Paths = append(embedErr.Paths, path)
			embedErr.Errs = append(embedErr.Errs, err)
			return nil
		}

		set(string(data))
		return nil
	})

	if err != nil {
		return err
	}
	if len(embedErr.Paths) > 0 {
		return embedErr
	}
	return nil
}

// walkStrings calls f for every string value nested in v. Derived properties
// of objects are skipped.
func walkStrings(v interface{}, path string, f func(path string, value string, set func(string)) error) error {
	switch c := v.(type) {
	case object.Object:
		return walkMap(c, path, f)
	case map[string]interface{}:
		return walkMap(c, path, f)
	case []interface{}:
		for i, e := range c {
			p := joinPath(path, strconv.Itoa(i))
			if s, ok := e.(string); ok {
				i := i
				if err := f(p, s, func(n string) { c[i] = n }); err != nil {
					return err
				}
				continue
			}
			if err := walkStrings(e, p, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkMap(m map[string]interface{}, path string, f func(path string, value string, set func(string)) error) error {
	for k, e := range m {
		if path == "" && isDerived(k) {
			continue
		}
		p := joinPath(path, k)
		if s, ok := e.(string); ok {
			k := k
			if err := f(p, s, func(n string) { m[k] = n }); err != nil {
				return err
			}
			continue
		}
		if err := walkStrings(e, p, f); err != nil {
			return err
		}
	}
	return nil
}

func isDerived(k string) bool {
	switch k {
	case object.LinkField, object.SigPubKeyField, object.AuthorField,
		object.RecipientField, object.InboundField, object.VirtualField,
		object.EmbedField:
		return true
	}
	return false
}

func joinPath(path, k string) string {
	if path == "" {
		return k
	}
	return path + "." + k
}
