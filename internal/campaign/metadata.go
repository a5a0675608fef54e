package campaign

import "strconv"

type metadata struct {
	hiddenURI string
	baseURI   string
	revealed  bool
}

func (m metadata) resolve(id uint64, suffix string) string {
	if !m.revealed {
		return m.hiddenURI
	}
	return m.baseURI + strconv.FormatUint(id, 10) + suffix
}

// TokenURI returns the hidden URI before reveal and baseURI+id+suffix after.
func (c *Campaign) TokenURI(id uint64) (string, error) {
	if !c.issuer.Exists(id) {
		return "", reject(KindUnknownToken, "token %d", id)
	}
	return c.meta.resolve(id, c.suffix), nil
}

func (c *Campaign) Revealed() bool { return c.meta.revealed }
