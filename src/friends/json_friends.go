package friends

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

const jsonFriendsPath = "friends.json"

// JSONFriends is used to provide friend persistence on disk in the form
// of a JSON file. This allows human operators to manipulate the file.
type JSONFriends struct {
	l    sync.Mutex
	path string
}

// NewJSONFriends creates a new JSONFriends store.
func NewJSONFriends(base string) *JSONFriends {
	path := filepath.Join(base, jsonFriendsPath)
	store := &JSONFriends{
		path: path,
	}
	return store
}

// Path ...
func (j *JSONFriends) Path() string {
	return j.path
}

// Friends implements the Directory interface. The file is read on every call
// so that edits are picked up without a restart.
func (j *JSONFriends) Friends() ([]*Friend, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	var friends []*Friend
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&friends); err != nil {
		return nil, err
	}

	return friends, nil
}

// SetFriends writes out the list of friends, replacing the file.
func (j *JSONFriends) SetFriends(friends []*Friend) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := json.MarshalIndent(friends, "", "\t")
	if err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf, 0600)
}

// Resolve implements the Directory interface.
func (j *JSONFriends) Resolve(ctx context.Context, permalink string) (*Friend, error) {
	friends, err := j.Friends()
	if err != nil {
		return nil, err
	}
	return resolve(friends, permalink)
}
