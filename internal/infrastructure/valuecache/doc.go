// Package valuecache keeps the last good reading of every dynamic attribute
// in a bbolt file, CBOR-encoded, so a restarted device can republish a
// stale value for an attribute that fails to evaluate.
//
// Usage:
//
//	cache, err := valuecache.Open(cfg.Cache.Path, cfg.Device.Name)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	engine := processor.NewEngine(processor.Deps{Store: cache})
package valuecache
