package migration

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// runCache remembers which record each exact key landed on within one group,
// so a later row adopts the record an earlier row created or linked. A row
// writes into a child layer that is folded in only once the row commits.
type runCache struct {
	parent *runCache
	keys   map[string]string
}

func newRunCache() *runCache {
	return &runCache{keys: map[string]string{}}
}

func (c *runCache) begin() *runCache {
	child := newRunCache()
	child.parent = c
	return child
}

func (c *runCache) commit(child *runCache) {
	for k, v := range child.keys {
		c.keys[k] = v
	}
}

func (c *runCache) lookup(keys []string) (string, bool) {
	for _, key := range keys {
		for layer := c; layer != nil; layer = layer.parent {
			if id, ok := layer.keys[key]; ok {
				return id, true
			}
		}
	}
	return "", false
}

func (c *runCache) remember(keys []string, id string) {
	if id == "" {
		return
	}
	for _, key := range keys {
		c.keys[key] = id
	}
}

func companyCacheKeys(req models.CreateCompanyRequest) []string {
	var keys []string
	if domain := normalizers.WebsiteHost(models.Deref(req.Website)); domain != "" {
		keys = append(keys, "company-domain:"+domain)
	}
	if name := normalizers.NormalizeCompanyName(req.Name); name != "" {
		keys = append(keys, "company-name:"+name)
	}
	return keys
}

// personCacheKeys scopes the name key by employer so namesakes at different
// companies stay apart.
func personCacheKeys(req models.CreatePersonRequest, companyID string) []string {
	var keys []string
	if email := normalizers.NormalizeEmail(models.Deref(req.Email)); email != "" {
		keys = append(keys, "person-email:"+email)
	}
	if name := normalizers.NormalizeName(req.FirstName + " " + req.LastName); name != "" {
		keys = append(keys, "person-name:"+companyID+":"+name)
	}
	return keys
}
