package memcache_fx

import (
	"go.uber.org/fx"
	mem "fieldpay/pkg/memcache"
)

var Module = fx.Provide(provideLeaseStore)

func provideLeaseStore() mem.LeaseStore {
	return mem.NewLeases()
}
