// Package storage selects and opens the persistence backend.
//
// # Backends
//
// Two backends implement every store interface the services consume:
//
//   - memory: in-process maps behind one lock (pkg/storage/memory). Suited to
//     tests and single-instance deployments; data is lost on restart.
//   - postgres: PostgreSQL through lib/pq (pkg/storage/postgres), with
//     optional read replicas and schema migrations.
//
// Both return apperrors.ErrNotFound and apperrors.ErrDuplicate so services
// translate store failures the same way regardless of backend.
//
// # Redis
//
// Redis is optional. When TASKHUB_REDIS_URL is set, NewRedisClient connects
// a go-redis client shared by the distributed rate limiter and the readiness
// check.
//
// # Usage
//
//	cfg := storage.DefaultConfig()
//	cfg.Type = storage.TypePostgres
//	cfg.PostgresURL = "postgres://taskhub@localhost/taskhub?sslmode=disable"
//
//	backend, err := storage.Open(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer backend.Close()
package storage
