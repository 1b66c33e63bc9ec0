// Package health provides liveness and readiness checks.
//
// Components register named checks on a Checker; the readiness endpoint runs
// them concurrently with a per-check timeout and answers 503 when any fails.
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("storage", health.PingCheck(store))
//	checker.RegisterCheck("backup_directory", health.WritableDirCheck(cfg.Backup.Directory))
//	mux.Handle("/ready", checker.ReadinessHandler())
package health
