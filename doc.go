// Package tally keeps denormalized counters (follower counts, unread counts,
// response counts) cheap to update and eventually consistent with the durable row.
//
// Components:
//   - Provider: string store with prefix deletion and atomic increment
//     (Redis, Ristretto, BigCache, or a remote kvd daemon).
//   - Cache: fail-open facade over one provider. Errors become a miss or false.
//   - Timed envelope: SetTimed/GetTimed stamp a value with its creation time and
//     discard it on read once it is ExpireAt old.
//   - Reconciler: converges cached and durable counter copies toward the larger value.
//
// Keys:
//
//	<app>.<subsystem>:<id>          counters and primary read-models
//	<app>.<subsystem>:<id>/<facet>  derived read-models
//
// Counter pattern:
//
//	rec.Incr(ctx, "followers", id)               // cache only, on every event
//	row := loadRow(id)                           // durable read
//	res, err := rec.Reconcile(ctx, "followers", id, row.FollowerCount)
//	// res.Value == max(row, cached); the smaller side was brought up to it
package tally
