package friends

import (
	"context"
	"strings"

	"github.com/mosaicnetworks/herald/src/common"
)

// Friend is a remote provider with an inbox endpoint.
type Friend struct {
	Permalink string `json:"permalink"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
}

// InboxURL is where batches of envelopes are posted for this friend.
func (f *Friend) InboxURL() string {
	return strings.TrimRight(f.URL, "/") + "/inbox"
}

// Directory resolves friends by permalink.
type Directory interface {
	Friends() ([]*Friend, error)
	Resolve(ctx context.Context, permalink string) (*Friend, error)
}

func resolve(friends []*Friend, permalink string) (*Friend, error) {
	for _, f := range friends {
		if f.Permalink == permalink {
			return f, nil
		}
	}
	return nil, common.NewErr("Friend", common.NotFound, permalink)
}
