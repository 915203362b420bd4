package orchestrator

import (
	"sync"

	"github.com/Mkrolick/co-streamer/internal/model"
)

// claimSet tracks items currently being fetched so that two channels
// surfacing the same item never fetch it at the same time
type claimSet struct {
	mu    sync.Mutex
	owner map[string]model.ChannelRef
}

func newClaimSet() *claimSet {
	return &claimSet{owner: make(map[string]model.ChannelRef)}
}

// claim reserves itemID for channel; false if another worker holds it
func (c *claimSet) claim(itemID string, channel model.ChannelRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.owner[itemID]; held {
		return false
	}
	c.owner[itemID] = channel
	return true
}

func (c *claimSet) release(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owner, itemID)
}
