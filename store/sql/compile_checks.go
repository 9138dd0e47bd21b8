package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.SessionStore           = (*SessionStore)(nil)
	_ core.TokenSetStore          = (*TokenSetStore)(nil)
	_ core.TokenSetStore          = (*CachedTokenSetStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
