package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-integrations/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores from a bun handle or a
// go-persistence-bun client. It satisfies core.RepositoryStoreFactory.
type RepositoryFactory struct {
	db           *bun.DB
	cacheService repositorycache.CacheService
	sessionOpts  []SessionStoreOption

	sessionStore  *SessionStore
	tokenSetStore core.TokenSetStore
}

type FactoryOption func(*RepositoryFactory)

// WithTokenSetCache wraps the token set store in a CachedTokenSetStore.
func WithTokenSetCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func WithSessionStoreOptions(opts ...SessionStoreOption) FactoryOption {
	return func(f *RepositoryFactory) {
		f.sessionOpts = append(f.sessionOpts, opts...)
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.sessionStore != nil && f.tokenSetStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) SessionStore() core.SessionStore {
	if f == nil || f.sessionStore == nil {
		return nil
	}
	return f.sessionStore
}

func (f *RepositoryFactory) TokenSetStore() core.TokenSetStore {
	if f == nil {
		return nil
	}
	return f.tokenSetStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	sessionStore, err := NewSessionStore(f.db, f.sessionOpts...)
	if err != nil {
		return err
	}
	tokenSetStore, err := NewTokenSetStore(f.db)
	if err != nil {
		return err
	}
	f.sessionStore = sessionStore
	f.tokenSetStore = tokenSetStore
	if f.cacheService != nil {
		cached, err := NewCachedTokenSetStore(tokenSetStore, f.cacheService)
		if err != nil {
			return err
		}
		f.tokenSetStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
