// Package device provides the Device Registry for hifilink.
//
// A device is a named piece of hi-fi equipment together with everything needed
// to signal it: learned IR pulse trains, an SAA3004 sub-address and code
// table, or the two GPIO lines of a Kenwood XS8 bus. The protocol tag chosen
// when a device is first written never changes afterwards.
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │
//	│   (registry.go)  │───▶│  (repository.go) │───▶ SQLite devices table
//	│ • cache + merge  │    │ • JSON documents │
//	└──────────────────┘    └──────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Partial update; nested objects merge, other values replace.
//	dev, err := registry.MergeDevice(ctx, "deck", map[string]any{
//	    "protocol":    "KENWOOD_XS8",
//	    "kenwood_xs8": map[string]any{"ctrl_pin": 14, "sdat_pin": 15},
//	})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Returned devices are deep
// copies and may be modified freely.
package device
