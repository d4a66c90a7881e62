package friends

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/herald/src/common"
)

func testFriends() []*Friend {
	friends := []*Friend{}
	for i := 0; i < 3; i++ {
		friends = append(friends, &Friend{
			Permalink: fmt.Sprintf("perma%d", i),
			URL:       fmt.Sprintf("http://friend%d:8000/", i),
			Name:      fmt.Sprintf("friend%d", i),
		})
	}
	return friends
}

func TestJSONFriends(t *testing.T) {
	dir, err := ioutil.TempDir("", "herald")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONFriends(dir)

	// No file yet: no friends, no error
	friends, err := store.Friends()
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 0 {
		t.Fatalf("friends: %v", friends)
	}

	if _, err := store.Resolve(context.Background(), "perma1"); !common.Is(err, common.NotFound) {
		t.Fatalf("Resolve should fail with NotFound, not %v", err)
	}

	newFriends := testFriends()
	if err := store.SetFriends(newFriends); err != nil {
		t.Fatalf("err: %v", err)
	}

	friends, err = store.Friends()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(friends, newFriends) {
		t.Fatalf("friends should be %v, not %v", newFriends, friends)
	}

	f, err := store.Resolve(context.Background(), "perma1")
	if err != nil {
		t.Fatal(err)
	}
	if f.InboxURL() != "http://friend1:8000/inbox" {
		t.Fatalf("InboxURL should be http://friend1:8000/inbox, not %s", f.InboxURL())
	}
}

func TestJSONFriendsMalformed(t *testing.T) {
	dir, err := ioutil.TempDir("", "herald")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONFriends(dir)

	if err := ioutil.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Friends(); err == nil {
		t.Fatal("Friends should fail on a malformed file")
	}
}

func TestStaticFriends(t *testing.T) {
	store := &StaticFriends{}
	store.SetFriends(testFriends())

	f, err := store.Resolve(context.Background(), "perma2")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "friend2" {
		t.Fatalf("Name should be friend2, not %s", f.Name)
	}

	if _, err := store.Resolve(context.Background(), "nope"); !common.Is(err, common.NotFound) {
		t.Fatalf("Resolve should fail with NotFound, not %v", err)
	}
}
