package match

import "sort"

// ClaimSet records which reference records have been assigned during one
// matching pass. It is not safe for concurrent use; a pass is serial.
type ClaimSet struct {
	claimed map[string]string
}

// NewClaimSet returns an empty ClaimSet.
func NewClaimSet() *ClaimSet {
	return &ClaimSet{claimed: make(map[string]string)}
}

// IsClaimed reports whether referenceID has been assigned.
func (c *ClaimSet) IsClaimed(referenceID string) bool {
	_, ok := c.claimed[referenceID]
	return ok
}

// ClaimedBy returns the extracted record that claimed referenceID.
func (c *ClaimSet) ClaimedBy(referenceID string) (string, bool) {
	id, ok := c.claimed[referenceID]
	return id, ok
}

// Claim assigns referenceID to extractedID. It reports false, leaving the
// set unchanged, if the reference was already claimed.
func (c *ClaimSet) Claim(referenceID, extractedID string) bool {
	if _, ok := c.claimed[referenceID]; ok {
		return false
	}
	c.claimed[referenceID] = extractedID
	return true
}

// Len returns the number of claimed references.
func (c *ClaimSet) Len() int {
	return len(c.claimed)
}

// Claimed returns the claimed reference ids in sorted order.
func (c *ClaimSet) Claimed() []string {
	ids := make([]string, 0, len(c.claimed))
	for id := range c.claimed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
